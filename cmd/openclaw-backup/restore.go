package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openclaw/backup/internal/restore"
)

func newRestoreCmd(env *cliEnv) *cobra.Command {
	var (
		source          string
		timestamp       string
		dryRun          bool
		skipPreBackup   bool
		suppressVersion bool
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a backup from a configured destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" {
				return fmt.Errorf("--source is required")
			}

			ui := newTerminalUI(env.noColor, env.quiet)
			o := env.restoreOrchestrator()
			o.Progress = ui.handle

			result, err := o.Run(cmd.Context(), restore.RunOptions{
				Source:                 source,
				Timestamp:              timestamp,
				DryRun:                 dryRun,
				SkipPreBackup:          skipPreBackup,
				SuppressVersionWarning: suppressVersion,
			})
			if err != nil {
				ui.failure("restore failed: %v", err)
				env.logger.Error("restore failed", zap.Error(err))
				return err
			}

			if result.VersionWarning != "" {
				ui.failure("warning: %s", result.VersionWarning)
			}
			if result.DryRun {
				ui.success("dry run: restore of %s would write %d files", result.Timestamp, result.FileCount)
				return nil
			}

			ui.success("restore complete: %s (%d files)", result.Timestamp, result.FileCount)
			if result.PreBackupCreated {
				fmt.Println("  a safety backup was taken before restoring")
			}
			for _, e := range result.Errors {
				fmt.Printf("  file error: %s\n", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "configured destination name to restore from (required)")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "restore the backup matching this timestamp substring (default: latest)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "verify without writing any file")
	cmd.Flags().BoolVar(&skipPreBackup, "skip-pre-backup", false, "skip the safety backup normally taken before restoring")
	cmd.Flags().BoolVar(&suppressVersion, "suppress-version-warning", false, "do not warn on a version mismatch between the backup and this build")

	return cmd
}
