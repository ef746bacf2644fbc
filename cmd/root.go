// Package cmd wires the CLI commands: serve (default), migrate and version.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	flagDebug   bool
	flagLogJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "research-agent",
	Short: "Conversational research agent backend",
	Long: `research-agent serves a streaming conversational backend: a staged
response pipeline over an OpenAI-compatible completion backend, pushed to
clients as Server-Sent Events and persisted as message chains in PostgreSQL.

Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "log in JSON format")
}
