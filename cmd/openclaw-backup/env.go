package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/openclaw/backup/internal/backup"
	"github.com/openclaw/backup/internal/config"
	"github.com/openclaw/backup/internal/keyring"
	"github.com/openclaw/backup/internal/metrics"
	"github.com/openclaw/backup/internal/notify"
	"github.com/openclaw/backup/internal/provider"
	"github.com/openclaw/backup/internal/restore"
	"github.com/openclaw/backup/internal/version"
)

// cliEnv holds the flags and lazily-built collaborators shared by every
// subcommand, populated once in the root command's PersistentPreRunE.
type cliEnv struct {
	configPath  string
	logLevel    string
	noColor     bool
	quiet       bool
	metricsAddr string

	opts    *config.Options
	logger  *zap.Logger
	metrics *metrics.Registry
	home    string
}

func (e *cliEnv) init() error {
	logger, err := buildLogger(e.logLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	e.logger = logger
	e.metrics = metrics.New()

	if e.configPath == "" {
		return fmt.Errorf("--config is required")
	}
	opts, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	e.opts = opts

	home, err := os.UserHomeDir()
	if err != nil {
		if u, uerr := user.Current(); uerr == nil {
			home = u.HomeDir
		} else {
			return fmt.Errorf("resolve home directory: %w", err)
		}
	}
	e.home = home

	if e.metricsAddr != "" {
		serveMetrics(e.metricsAddr, e.metrics, e.logger)
	}
	return nil
}

func (e *cliEnv) openclawDir() string {
	return filepath.Join(e.home, ".openclaw")
}

func (e *cliEnv) notifyManager() *notify.Manager {
	return notify.NewManager(e.openclawDir(), e.opts.AlertAfterFailures)
}

func (e *cliEnv) keyringManager() *keyring.Manager {
	return keyring.NewManager(e.opts.EncryptKeyPath, e.logger)
}

func (e *cliEnv) backupOrchestrator() *backup.Orchestrator {
	o := backup.New(e.opts, e.home, e.logger, e.metrics, e.notifyManager())
	o.PluginVersion = version.PluginVersion
	o.OpenclawVersion = version.OpenclawVersion
	return o
}

func (e *cliEnv) restoreOrchestrator() *restore.Orchestrator {
	return restore.New(e.opts, e.home, e.logger, e.metrics, e.keyringManager(), e.backupOrchestrator())
}

// providerByName instantiates the provider for a single configured
// destination, preferring its local side when both are set, matching
// internal/restore's own resolution rule.
func (e *cliEnv) providerByName(name string) (provider.Provider, error) {
	dest, ok := e.opts.Destinations[name]
	if !ok {
		return nil, fmt.Errorf("unknown destination %q", name)
	}
	if dest.Path != "" {
		return provider.NewLocal(dest.Path)
	}
	if dest.Remote != "" {
		return provider.NewRemoteSync(dest.Remote), nil
	}
	return nil, fmt.Errorf("destination %q has neither path nor remote configured", name)
}

// allProviders instantiates every configured destination as one or two
// providers (a destination with both Path and Remote set yields both).
func (e *cliEnv) allProviders() ([]provider.Provider, error) {
	var out []provider.Provider
	for name, dest := range e.opts.Destinations {
		if dest.Path != "" {
			p, err := provider.NewLocal(dest.Path)
			if err != nil {
				return nil, fmt.Errorf("destination %q: %w", name, err)
			}
			out = append(out, p)
		}
		if dest.Remote != "" {
			out = append(out, provider.NewRemoteSync(dest.Remote))
		}
	}
	return out, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// isTerminal reports whether stderr is an interactive terminal, gating
// progress-bar rendering and colored output.
func isTerminal() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}
