package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the outcome of the most recent backup run",
		RunE: func(cmd *cobra.Command, args []string) error {
			n := env.notifyManager()

			if message, ok := n.StartupCheck(); ok {
				fmt.Println(message)
			}

			last, found := n.LastResult()
			if !found {
				fmt.Println("no backup has run yet")
				return nil
			}

			fmt.Printf("last run: %s at %s (consecutive failures: %d)\n", last.Type, last.Timestamp.Format("2006-01-02T15:04:05Z07:00"), last.ConsecutiveFailures)
			if last.Details != nil {
				fmt.Printf("details: %v\n", last.Details)
			}

			info := env.keyringManager().Info()
			switch {
			case !info.Exists:
				fmt.Println("encryption key: not generated yet")
			case !info.Readable:
				fmt.Println("encryption key: present but unreadable")
			default:
				fmt.Printf("encryption key: %s (%d retired)\n", info.KeyID, info.RetiredKeyCount)
			}
			return nil
		},
	}
}
