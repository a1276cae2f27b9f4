package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openclaw/backup/internal/backup"
)

func newBackupCmd(env *cliEnv) *cobra.Command {
	var (
		dryRun        bool
		destination   string
		skipDiskCheck bool
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Collect, archive, and replicate a backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newTerminalUI(env.noColor, env.quiet)

			o := env.backupOrchestrator()
			o.Progress = ui.handle

			result, err := o.Run(cmd.Context(), backup.RunOptions{
				DryRun:        dryRun,
				Destination:   destination,
				SkipDiskCheck: skipDiskCheck,
			})
			if err != nil {
				ui.failure("backup failed: %v", err)
				env.logger.Error("backup failed", zap.Error(err))
				return err
			}

			if result.DryRun {
				ui.success("dry run: %d files, %d bytes would be archived", result.FileCount, result.TotalBytes)
				return nil
			}

			ui.success("backup complete: %s (%d files, %d bytes archive)", result.ArchiveName, result.FileCount, result.ArchiveSize)
			if len(result.SucceededDestinations) > 0 {
				fmt.Printf("  succeeded: %v\n", result.SucceededDestinations)
			}
			if len(result.SkippedDestinations) > 0 {
				fmt.Printf("  skipped:   %v\n", result.SkippedDestinations)
			}
			if len(result.FailedDestinations) > 0 {
				fmt.Printf("  failed:    %v\n", result.FailedDestinations)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "collect and report without writing an archive or replicating")
	cmd.Flags().StringVar(&destination, "destination", "", "limit this run to one configured destination")
	cmd.Flags().BoolVar(&skipDiskCheck, "skip-disk-check", false, "skip the free-space preflight check")

	return cmd
}
