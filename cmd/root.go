package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragrelay",
	Short: "ragrelay - retrieval-augmented proxy for a local inference backend",
	Long: `ragrelay sits between clients and an Ollama-compatible backend. It
indexes a source tree into a vector store, augments incoming prompts with
retrieved excerpts (and optional web results), and relays the backend's
responses, streaming included.

Running ragrelay with no subcommand starts the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// No subcommand means serve.
		return runServe(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
