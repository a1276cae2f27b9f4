package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openclaw/backup/internal/index"
	"github.com/openclaw/backup/internal/keyring"
)

func newRotateKeyCmd(env *cliEnv) *cobra.Command {
	var reencrypt bool

	cmd := &cobra.Command{
		Use:   "rotate-key",
		Short: "Generate a new encryption key and retire the old one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newTerminalUI(env.noColor, env.quiet)
			kr := env.keyringManager()

			result, err := kr.Rotate(cmd.Context())
			if err != nil {
				ui.failure("key rotation failed: %v", err)
				env.metrics.ObserveRotation(false)
				return err
			}
			env.metrics.ObserveRotation(true)
			ui.success("key rotated: %s -> %s", result.OldKeyID, result.NewKeyID)

			if !reencrypt {
				fmt.Println("existing archives remain encrypted under the retired key; pass --reencrypt to re-wrap them")
				return nil
			}

			jobs, retiredKeyPath, err := env.collectReencryptJobs(cmd.Context(), kr, result.OldKeyID)
			if err != nil {
				ui.failure("collecting archives to re-encrypt failed: %v", err)
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("no encrypted archives found to re-encrypt")
				return nil
			}

			succeeded, errs := kr.ReencryptAll(cmd.Context(), jobs, retiredKeyPath)
			fmt.Printf("re-encrypted %d of %d archive(s) under the new key\n", succeeded, len(jobs))
			for _, e := range errs {
				env.logger.Warn("reencrypt job failed", zap.Error(e))
				fmt.Printf("  error: %v\n", e)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reencrypt, "reencrypt", false, "re-encrypt every existing archive under the new key")

	return cmd
}

// collectReencryptJobs refreshes the cross-provider index and expands every
// encrypted entry into one ReencryptJob per provider that holds it. It is
// only safe to call immediately after Rotate, while every encrypted archive
// still on record is known to be wrapped under the just-retired key.
func (e *cliEnv) collectReencryptJobs(ctx context.Context, kr *keyring.Manager, oldKeyID string) ([]keyring.ReencryptJob, string, error) {
	providers, err := e.allProviders()
	if err != nil {
		return nil, "", err
	}
	providerByName := make(map[string]int)
	for i, p := range providers {
		providerByName[p.Name()] = i
	}

	idx := index.NewManager(providers, "", e.logger)
	idx.Metrics = e.metrics
	entries, err := idx.Refresh(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("refresh index: %w", err)
	}

	var jobs []keyring.ReencryptJob
	for _, entry := range entries {
		if !entry.Encrypted {
			continue
		}
		for _, providerName := range entry.Providers {
			i, ok := providerByName[providerName]
			if !ok {
				continue
			}
			jobs = append(jobs, keyring.ReencryptJob{Entry: entry, Provider: providers[i]})
		}
	}

	retiredKeyPath, err := kr.FindDecryptionKey(oldKeyID)
	if err != nil {
		return nil, "", fmt.Errorf("resolve retired key path: %w", err)
	}
	if retiredKeyPath == "" {
		return nil, "", fmt.Errorf("retired key %s not found", oldKeyID)
	}

	return jobs, retiredKeyPath, nil
}
