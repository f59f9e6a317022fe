package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/davidbz/promptfmt/internal/observability"
	"github.com/davidbz/promptfmt/internal/prompttext"
)

// Tool names.
const (
	ToolFormat   = "format-prompt"
	ToolOptimize = "optimize-prompt"
	ToolAnalyze  = "analyze-prompt"
	ToolCheck    = "check-connection"
	ToolConfirm  = "confirm-and-continue"
)

// FormatInput is the input schema for the format-prompt tool.
type FormatInput struct {
	Content string `json:"content" jsonschema:"Prompt content to format"`
	Style   string `json:"style,omitempty" jsonschema:"Formatting style: basic, professional, conversational, technical (default: basic)"`
}

// ContentInput is the input schema for the optimize-prompt and analyze-prompt tools.
type ContentInput struct {
	Content string `json:"content" jsonschema:"Prompt content to process"`
}

// CheckInput is the (empty) input schema for the check-connection tool.
type CheckInput struct{}

// ConfirmInput is the input schema for the confirm-and-continue tool.
type ConfirmInput struct {
	FinalPrompt string `json:"finalPrompt" jsonschema:"The final confirmed prompt to use for the AI conversation"`
}

// boolPtr returns a pointer to a bool.
func boolPtr(b bool) *bool { return &b }

type toolset struct {
	service PromptService
	logger  *zap.Logger
}

// registerTools adds all prompt tools to the MCP server.
func registerTools(server *mcp.Server, t *toolset) {
	remote := &mcp.ToolAnnotations{
		ReadOnlyHint:    true,
		DestructiveHint: boolPtr(false),
		OpenWorldHint:   boolPtr(true),
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolFormat,
		Description: "Format a prompt into clean, structured Markdown in the requested style.",
		Annotations: remote,
	}, t.handleFormat)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolOptimize,
		Description: "Optimize a prompt for better AI model performance. Review the result, then submit the final version with confirm-and-continue.",
		Annotations: remote,
	}, t.handleOptimize)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolAnalyze,
		Description: "Analyze a prompt for clarity, completeness and structure, with concrete suggestions.",
		Annotations: remote,
	}, t.handleAnalyze)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolCheck,
		Description: "Check that the completion endpoint is reachable with the configured credentials.",
		Annotations: remote,
	}, t.handleCheck)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolConfirm,
		Description: "Confirm the final prompt and signal that the assistant should answer using it.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:    true,
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleConfirm)
}

// begin tags ctx for one tool invocation and returns its logger.
func (t *toolset) begin(ctx context.Context, tool string) (context.Context, *zap.Logger) {
	ctx = observability.WithTool(ctx, tool)
	if observability.GetRequestID(ctx) == "" {
		ctx = observability.WithRequestID(ctx, observability.GenerateRequestID())
	}
	return ctx, observability.Contextual(ctx, t.logger)
}

func (t *toolset) handleFormat(ctx context.Context, _ *mcp.CallToolRequest, input FormatInput) (*mcp.CallToolResult, any, error) {
	ctx, logger := t.begin(ctx, ToolFormat)

	if err := prompttext.Validate(input.Content); err != nil {
		return errorResult("Formatting", err), nil, nil
	}
	style, err := prompttext.ValidateStyle(input.Style)
	if err != nil {
		return errorResult("Formatting", err), nil, nil
	}

	content := prompttext.Sanitize(input.Content)
	stats := prompttext.Measure(content)
	logger.Info("formatting prompt",
		observability.String("style", string(style)),
		observability.Int("characters", stats.Characters))

	started := time.Now()
	formatted, err := t.service.FormatPrompt(ctx, content, style)
	if err != nil {
		logger.Error("formatting failed", observability.Error(err))
		return errorResult("Formatting", err), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Formatted Prompt (%s)\n\n%s\n\n---\n\n", style, formatted)
	fmt.Fprintf(&b, "Input: %d characters, %d words, %d lines. Took %s.",
		stats.Characters, stats.Words, stats.Lines, time.Since(started).Round(time.Millisecond))
	if prompttext.IsAlreadyFormatted(content) {
		b.WriteString("\n\n> Note: the input already looked like structured Markdown.")
	}

	return textResult(b.String()), nil, nil
}

func (t *toolset) handleOptimize(ctx context.Context, _ *mcp.CallToolRequest, input ContentInput) (*mcp.CallToolResult, any, error) {
	ctx, logger := t.begin(ctx, ToolOptimize)

	if err := prompttext.Validate(input.Content); err != nil {
		return errorResult("Optimization", err), nil, nil
	}

	content := prompttext.Sanitize(input.Content)
	logger.Info("optimizing prompt", observability.Int("characters", prompttext.Measure(content).Characters))

	optimized, err := t.service.OptimizePrompt(ctx, content)
	if err != nil {
		logger.Error("optimization failed", observability.Error(err))
		return errorResult("Optimization", err), nil, nil
	}

	text := fmt.Sprintf("## Prompt Optimization\n\n"+
		"### Original prompt\n```\n%s\n```\n\n"+
		"### Optimized prompt\n```\n%s\n```\n\n---\n\n"+
		"### Next step\n\n"+
		"1. Review the optimized prompt above\n"+
		"2. Edit it if needed\n"+
		"3. Submit the final version with the `%s` tool\n\n"+
		"> After `%s`, the assistant answers using the confirmed prompt.",
		content, optimized, ToolConfirm, ToolConfirm)

	return textResult(text), nil, nil
}

func (t *toolset) handleAnalyze(ctx context.Context, _ *mcp.CallToolRequest, input ContentInput) (*mcp.CallToolResult, any, error) {
	ctx, logger := t.begin(ctx, ToolAnalyze)

	if err := prompttext.Validate(input.Content); err != nil {
		return errorResult("Analysis", err), nil, nil
	}

	content := prompttext.Sanitize(input.Content)
	complexity := prompttext.EstimateComplexity(content)
	logger.Info("analyzing prompt", observability.String("complexity", string(complexity)))

	analysis, err := t.service.AnalyzePrompt(ctx, content)
	if err != nil {
		logger.Error("analysis failed", observability.Error(err))
		return errorResult("Analysis", err), nil, nil
	}

	text := fmt.Sprintf("## Prompt Analysis\n\n**Complexity:** %s\n\n%s", complexity, analysis)
	return textResult(text), nil, nil
}

func (t *toolset) handleCheck(ctx context.Context, _ *mcp.CallToolRequest, _ CheckInput) (*mcp.CallToolResult, any, error) {
	ctx, logger := t.begin(ctx, ToolCheck)

	if t.service.CheckConnection(ctx) {
		logger.Info("connection check passed")
		return textResult("Connection OK: the completion endpoint is reachable."), nil, nil
	}

	logger.Warn("connection check failed")
	return textResult("Connection failed: the completion endpoint is unreachable. " +
		"Check SILICONFLOW_API_KEY, SILICONFLOW_BASE_URL and network access."), nil, nil
}

func (t *toolset) handleConfirm(ctx context.Context, _ *mcp.CallToolRequest, input ConfirmInput) (*mcp.CallToolResult, any, error) {
	_, logger := t.begin(ctx, ToolConfirm)

	if err := prompttext.Validate(input.FinalPrompt); err != nil {
		return errorResult("Confirmation", err), nil, nil
	}

	logger.Info("prompt confirmed")
	text := fmt.Sprintf("The prompt above is confirmed. Now answer the user's question directly using this prompt:\n\n%s\n\n"+
		"**Do not ask the user to repeat the question.**", prompttext.Sanitize(input.FinalPrompt))

	return textResult(text), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(action string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s failed: %v", action, err)},
		},
	}
}
