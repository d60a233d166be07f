package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/samsaffron/roundtable/internal/update"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func init() {
	update.SetupUpdateChecks(rootCmd, Version)
}

var rootCmd = &cobra.Command{
	Use:   "roundtable",
	Short: "Streaming chat in your terminal, solo or multi-agent",
	Long: `roundtable is a terminal chat client for LLM providers with streaming
responses, tool calls, message editing, and multi-agent discussions.

Examples:
  roundtable chat                       # interactive chat
  roundtable chat --resume              # pick up the last conversation
  roundtable discuss "should we rewrite it in Rust?"

  roundtable sessions                   # list saved conversations
  roundtable config                     # view configuration`,
	Version: Version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
