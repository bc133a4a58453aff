package main

import (
	"encoding/json"
	"fmt"
	"os"

	"llm_console/internal/config"
	"llm_console/internal/httpapi"
	"llm_console/internal/logging"
	"llm_console/internal/status"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var (
		force    bool
		provider string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the combined store and provider status as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := status.ParseScope(provider)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// keep stdout for the JSON document
			logger := logging.New(os.Stderr, "status", logging.Warning)
			deps, err := httpapi.NewDependencies(cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			payload := deps.Status.GetStatus(cmd.Context(), force, scope)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "probe every provider instead of using cached results")
	cmd.Flags().StringVar(&provider, "provider", "all", "provider to report: all, openai or ollama")
	return cmd
}
