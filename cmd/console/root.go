package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "llm-console",
		Short: "Operator console for the hosted and local LLM backends",
		Long: `llm-console serves a small web console to choose between the hosted
OpenAI API and a local Ollama server, store model names and the API key in
Redis, and watch whether each backend is reachable.

Examples:
  llm-console serve
  llm-console status --force --provider ollama
  llm-console hash-password 'correct horse'
  llm-console generate-key`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := newServeCmd()
	root.AddCommand(serve, newStatusCmd(), newHashPasswordCmd(), newGenerateKeyCmd())

	// Running without a subcommand starts the server.
	root.RunE = serve.RunE
	return root
}
