package domain

import (
	"fmt"
	"strings"
)

// FormatStyle selects the system instruction used by FormatPrompt.
type FormatStyle string

const (
	StyleBasic          FormatStyle = "basic"
	StyleProfessional   FormatStyle = "professional"
	StyleConversational FormatStyle = "conversational"
	StyleTechnical      FormatStyle = "technical"
)

// FormatStyles lists the supported styles in presentation order.
func FormatStyles() []FormatStyle {
	return []FormatStyle{StyleBasic, StyleProfessional, StyleConversational, StyleTechnical}
}

// ParseFormatStyle resolves a style name. An empty name selects StyleBasic.
func ParseFormatStyle(name string) (FormatStyle, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return StyleBasic, nil
	}

	for _, style := range FormatStyles() {
		if string(style) == name {
			return style, nil
		}
	}

	names := make([]string, 0, len(FormatStyles()))
	for _, style := range FormatStyles() {
		names = append(names, string(style))
	}
	return "", fmt.Errorf("unsupported format style %q (supported: %s)", name, strings.Join(names, ", "))
}

const formatPreamble = "You are a prompt formatting assistant. Rewrite the prompt the user sends " +
	"without changing its intent or its language. Output only the rewritten prompt, " +
	"with no commentary before or after it.\n\n"

//nolint:gochecknoglobals // Read-only template table
var formatInstructions = map[FormatStyle]string{
	StyleBasic: formatPreamble +
		"Style: basic. Produce clean Markdown. Use a short heading, group related " +
		"instructions into lists, and fix spelling and punctuation.",
	StyleProfessional: formatPreamble +
		"Style: professional. Organise the prompt into the sections Role, Context, Task, " +
		"Requirements and Output Format. Use precise, formal wording.",
	StyleConversational: formatPreamble +
		"Style: conversational. Keep a natural, friendly tone in short paragraphs. " +
		"Make the request easy to read aloud while keeping every requirement.",
	StyleTechnical: formatPreamble +
		"Style: technical. Write it as a specification: inputs, constraints, expected " +
		"output, and edge cases. Put code, commands and data samples in fenced code blocks.",
}

const optimizeTemplate = `Optimize the following prompt so that it is clearer, more precise and easier for an AI model to follow. Requirements:

1. Keep the original intent unchanged
2. Make the instructions clearer
3. Add the context that is missing
4. Use a structured form
5. Make sure the result is actionable

Output only the optimized prompt, without any extra explanation.

Original prompt:
%s`

const analyzeTemplate = `Analyze the following prompt and report on:

1. Clarity: is the goal unambiguous?
2. Completeness: which context or constraints are missing?
3. Structure: is the request well organised?
4. Risks: what could a model misunderstand?
5. Suggestions: concrete improvements, most important first

Answer in concise Markdown.

Prompt:
%s`

// FormatInstruction returns the system instruction for style.
func FormatInstruction(style FormatStyle) (string, bool) {
	text, ok := formatInstructions[style]
	return text, ok
}

func optimizeInstruction(content string) string {
	return fmt.Sprintf(optimizeTemplate, content)
}

func analyzeInstruction(content string) string {
	return fmt.Sprintf(analyzeTemplate, content)
}
