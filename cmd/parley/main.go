// Package main provides the CLI entry point for parley, an interactive
// command-line LLM assistant.
//
// # Basic Usage
//
// Start a chat session:
//
//	parley chat
//
// Run an autonomous agent session:
//
//	parley simple-agent --budget 20
//
// Start a research session with an extra tool server attached:
//
//	parley research "npx papers-mcp:papers"
//
// # Environment Variables
//
//   - PARLEY_CONFIG: Path to configuration file
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models (also used by Venice)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "parley - interactive command-line LLM assistant",
		Long: `Parley runs turn-based conversations with LLM backends in your terminal.

It supports an autonomous agent mode, an embedded command language the
assistant uses to edit files and call tools, and external tool servers
speaking the Model Context Protocol.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildChatCmd(),
		buildAgentCmd(),
		buildResearchCmd(),
		buildUtilsCmd(),
		buildInfoCmd(),
	)
	return rootCmd
}
