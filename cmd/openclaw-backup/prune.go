package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/backup/internal/index"
	"github.com/openclaw/backup/internal/provider"
	"github.com/openclaw/backup/internal/retention"
)

func newPruneCmd(env *cliEnv) *cobra.Command {
	var keepCount int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Enforce the retention policy across every destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newTerminalUI(env.noColor, env.quiet)

			providers, err := env.allProviders()
			if err != nil {
				return err
			}
			providerMap := make(map[string]provider.Provider, len(providers))
			for _, p := range providers {
				providerMap[p.Name()] = p
			}

			count := keepCount
			if count == 0 {
				count = env.opts.Retention.Count
			}

			idx := index.NewManager(providers, "", env.logger)
			idx.Metrics = env.metrics
			pruner := retention.NewPruner(idx, providerMap, env.metrics, env.logger)

			result, err := pruner.Prune(cmd.Context(), count)
			if err != nil {
				ui.failure("prune failed: %v", err)
				return err
			}

			ui.success("prune complete: kept %d, deleted %d", len(result.Kept), len(result.Deleted))
			for _, e := range result.Errors {
				fmt.Printf("  error: %v\n", e)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&keepCount, "keep", 0, "number of most recent backups to keep (default: config retention.count)")

	return cmd
}
