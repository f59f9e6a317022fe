package main

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for promptfmt.
var rootCmd = &cobra.Command{
	Use:   "promptfmt",
	Short: "Prompt formatting tools over the Model Context Protocol",
	Long: `promptfmt is an MCP server that formats, optimizes and analyzes prompts
by delegating the rewrite to a SiliconFlow chat-completion model.

Configuration is read from the environment (and a .env file when present):
SILICONFLOW_API_KEY, SILICONFLOW_BASE_URL, MODEL_NAME, SILICONFLOW_TIMEOUT,
SILICONFLOW_MAX_ATTEMPTS, COMPLETION_PROVIDER, LOG_LEVEL, LOG_FORMAT.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(serveHTTPCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}
