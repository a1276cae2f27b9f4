// Command openclaw-backup is the CLI front end for the backup engine: a
// cobra.Command tree with backup, restore, rotate-key, prune, index, and
// status subcommands, each constructing the typed option structs from
// internal/config and calling into the orchestrators.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	env := &cliEnv{}

	root := &cobra.Command{
		Use:   "openclaw-backup",
		Short: "Personal-data backup and restore engine",
		Long: `openclaw-backup produces timestamped, compressed, content-addressed,
optionally encrypted archives of configured filesystem roots, replicates
them to one or more storage destinations, maintains a cross-provider
index, enforces retention, and restores from any replica with end-to-end
integrity verification and an encryption-key rotation protocol.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.init()
		},
	}

	root.PersistentFlags().StringVar(&env.configPath, "config", "", "path to the backup config JSON file (required)")
	root.PersistentFlags().StringVar(&env.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&env.noColor, "no-color", false, "disable colored terminal output")
	root.PersistentFlags().BoolVar(&env.quiet, "quiet", false, "suppress progress bars and non-essential output")
	root.PersistentFlags().StringVar(&env.metricsAddr, "metrics-addr", "", "HTTP listen address to serve Prometheus metrics (empty to disable)")

	root.AddCommand(newBackupCmd(env))
	root.AddCommand(newRestoreCmd(env))
	root.AddCommand(newRotateKeyCmd(env))
	root.AddCommand(newPruneCmd(env))
	root.AddCommand(newIndexCmd(env))
	root.AddCommand(newStatusCmd(env))
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("openclaw-backup %s (commit: %s, built: %s)\n", buildVersion, buildCommit, buildDate)
		},
	}
}
