package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openclaw/backup/internal/index"
)

func newIndexCmd(env *cliEnv) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "List the cross-provider backup index",
		RunE: func(cmd *cobra.Command, args []string) error {
			providers, err := env.allProviders()
			if err != nil {
				return err
			}
			cachePath := filepath.Join(env.openclawDir(), "index-cache.json")
			idx := index.NewManager(providers, cachePath, env.logger)
			idx.Metrics = env.metrics

			var entries []index.Entry
			if refresh {
				entries, err = idx.Refresh(cmd.Context())
			} else {
				entries, err = idx.Get(cmd.Context())
			}
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Println("no backups found")
				return nil
			}
			for _, e := range entries {
				enc := ""
				if e.Encrypted {
					enc = " (encrypted)"
				}
				fmt.Printf("%s  %s  %v  %d files, %d bytes%s\n", e.Timestamp, e.Filename, e.Providers, e.FileCount, e.SizeByte, enc)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "force a fresh scan instead of using the local cache")

	return cmd
}
