// Package config loads the JSON configuration object this engine reads
// either from a root "backup" key or an embedded plugin-config path, and
// validates it into typed, ready-to-use option structs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/openclaw/backup/internal/pathutil"
)

// Destination is one configured push target: exactly one of Path or Remote
// must be set, or both (meaning this destination is replicated to a local
// directory and a remote-sync target under the same name).
type Destination struct {
	Path   string `json:"path,omitempty"`
	Remote string `json:"remote,omitempty"`
}

// Retention carries the pruning policy.
type Retention struct {
	Count int `json:"count"`
}

// Options is the fully validated, typed configuration for one engine
// instance.
type Options struct {
	Encrypt            bool                   `json:"encrypt"`
	EncryptKeyPath     string                 `json:"encryptKeyPath"`
	Include            []string               `json:"include"`
	ExtraPaths         []string               `json:"extraPaths"`
	Exclude            []string               `json:"exclude"`
	IncludeTranscripts bool                   `json:"includeTranscripts"`
	IncludePersistor   bool                   `json:"includePersistor"`
	Retention          Retention              `json:"retention"`
	Destinations       map[string]Destination `json:"destinations"`
	Schedule           string                 `json:"schedule,omitempty"`
	Hostname           string                 `json:"hostname,omitempty"`
	TempDir            string                 `json:"tempDir,omitempty"`
	SkipDiskCheck      bool                   `json:"skipDiskCheck"`
	AlertAfterFailures int                    `json:"alertAfterFailures"`
}

// rawOptions mirrors Options' JSON shape but leaves Encrypt as a pointer so
// Parse can tell "absent" (default true applies) apart from an explicit
// "false", a distinction encoding/json can't make on a plain bool.
type rawOptions struct {
	Encrypt            *bool                  `json:"encrypt"`
	EncryptKeyPath     string                 `json:"encryptKeyPath"`
	Include            []string               `json:"include"`
	ExtraPaths         []string               `json:"extraPaths"`
	Exclude            []string               `json:"exclude"`
	IncludeTranscripts bool                   `json:"includeTranscripts"`
	IncludePersistor   bool                   `json:"includePersistor"`
	Retention          Retention              `json:"retention"`
	Destinations       map[string]Destination `json:"destinations"`
	Schedule           string                 `json:"schedule,omitempty"`
	Hostname           string                 `json:"hostname,omitempty"`
	TempDir            string                 `json:"tempDir,omitempty"`
	SkipDiskCheck      bool                   `json:"skipDiskCheck"`
	AlertAfterFailures int                    `json:"alertAfterFailures"`
}

// rawDocument mirrors the top-level JSON shape for unmarshaling before
// defaults and validation are applied.
type rawDocument struct {
	Backup *rawOptions `json:"backup"`
	rawOptions
}

// Load reads path, looks for a root "backup" key first and otherwise treats
// the whole document as the config object (the embedded plugin-config
// form), applies defaults, and validates the result.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw JSON bytes into validated Options.
func Parse(data []byte) (*Options, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: invalid JSON: %w", stripErr(err))
	}

	raw := doc.rawOptions
	if doc.Backup != nil {
		raw = *doc.Backup
	}

	opts := Options{
		EncryptKeyPath:     raw.EncryptKeyPath,
		Include:            raw.Include,
		ExtraPaths:         raw.ExtraPaths,
		Exclude:            raw.Exclude,
		IncludeTranscripts: raw.IncludeTranscripts,
		IncludePersistor:   raw.IncludePersistor,
		Retention:          raw.Retention,
		Destinations:       raw.Destinations,
		Schedule:           raw.Schedule,
		Hostname:           raw.Hostname,
		TempDir:            raw.TempDir,
		SkipDiskCheck:      raw.SkipDiskCheck,
		AlertAfterFailures: raw.AlertAfterFailures,
	}
	if raw.Encrypt == nil {
		opts.Encrypt = true
	} else {
		opts.Encrypt = *raw.Encrypt
	}

	applyDefaults(&opts)
	if err := validate(&opts); err != nil {
		return nil, err
	}
	if err := expandPaths(&opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

func applyDefaults(o *Options) {
	if o.AlertAfterFailures == 0 {
		o.AlertAfterFailures = 3
	}
}

func validate(o *Options) error {
	if o.Retention.Count < 0 || o.Retention.Count > 1000 {
		return fmt.Errorf("config: retention.count must be in [0, 1000], got %s", sanitize(strconv.Itoa(o.Retention.Count)))
	}
	if o.AlertAfterFailures <= 0 {
		return fmt.Errorf("config: alertAfterFailures must be positive, got %s", sanitize(strconv.Itoa(o.AlertAfterFailures)))
	}
	for name, dest := range o.Destinations {
		if dest.Path == "" && dest.Remote == "" {
			return fmt.Errorf("config: destination %q must set path, remote, or both", sanitize(name))
		}
	}
	if o.Schedule != "" {
		if _, err := cron.ParseStandard(o.Schedule); err != nil {
			return fmt.Errorf("config: invalid schedule %q: %w", sanitize(o.Schedule), err)
		}
	}
	if o.Hostname != "" {
		o.Hostname = pathutil.SanitizeHostname(o.Hostname)
	}
	return nil
}

func expandPaths(o *Options) error {
	home, err := homeDir()
	if err != nil {
		return fmt.Errorf("config: resolve home directory: %w", err)
	}

	expand := func(p string) string {
		if p == "" {
			return p
		}
		if p == "~" {
			return home
		}
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}

	o.EncryptKeyPath = expand(o.EncryptKeyPath)
	if o.EncryptKeyPath == "" {
		o.EncryptKeyPath = filepath.Join(home, ".openclaw", ".secrets", "backup.age")
	}
	o.TempDir = expand(o.TempDir)
	for i, p := range o.Include {
		o.Include[i] = expand(p)
	}
	for i, p := range o.ExtraPaths {
		o.ExtraPaths[i] = expand(p)
	}
	for name, d := range o.Destinations {
		d.Path = expand(d.Path)
		o.Destinations[name] = d
	}
	return nil
}

func homeDir() (string, error) {
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return h, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.HomeDir, nil
}

func sanitize(s string) string {
	return pathutil.StripControlChars(s)
}

func stripErr(err error) error {
	return fmt.Errorf("%s", sanitize(err.Error()))
}
