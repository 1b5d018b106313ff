// Package config loads the list of prefix lists to manage and the settings of a sync run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/prefixlist"
	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/source"
)

const (
	// EnvConfigPath names the config file when no path is given explicitly.
	EnvConfigPath = "PREFIXSYNC_CONFIG"

	// EnvTargets carries a YAML or JSON list of targets that replaces the file's targets.
	EnvTargets = "PREFIXSYNC_TARGETS"

	DefaultPath = "prefixsync.toml"
)

// Fetch failure policies.
const (
	// OnFetchErrorReconcileEmpty treats a failed fetch as an empty hook list,
	// so every managed prefix list is emptied.
	OnFetchErrorReconcileEmpty = "reconcile-empty"

	// OnFetchErrorSkip leaves every prefix list untouched when the fetch fails.
	OnFetchErrorSkip = "skip"
)

// Target is one AWS region and the prefix lists to keep in sync there.
type Target struct {
	Region     string `toml:"region" yaml:"region"`
	IPv4ListID string `toml:"ipv4" yaml:"ipv4"`
	IPv6ListID string `toml:"ipv6" yaml:"ipv6"`

	// RoleARN, when set, is assumed to manage the lists in another account.
	RoleARN string `toml:"role-arn" yaml:"role-arn"`
}

// Config is the full settings of a sync run, as read from the config file.
type Config struct {
	OnFetchError     string `toml:"on-fetch-error" yaml:"on-fetch-error"`
	EntryDescription string `toml:"entry-description" yaml:"entry-description"`
	LogLevel         string `toml:"log-level" yaml:"log-level"`
	LogFormat        string `toml:"log-format" yaml:"log-format"`

	Source  SourceConfig `toml:"source" yaml:"source"`
	Wait    WaitConfig   `toml:"wait" yaml:"wait"`
	Mirror  MirrorConfig `toml:"mirror" yaml:"mirror"`
	Targets []Target     `toml:"targets" yaml:"targets"`
}

// SourceConfig locates the document listing the webhook CIDRs.
type SourceConfig struct {
	URL     string   `toml:"url" yaml:"url"`
	Key     string   `toml:"key" yaml:"key"`
	Timeout Duration `toml:"timeout" yaml:"timeout"`
}

// WaitConfig bounds the polling after a prefix list resize.
type WaitConfig struct {
	Interval    Duration `toml:"interval" yaml:"interval"`
	MaxAttempts int      `toml:"max-attempts" yaml:"max-attempts"`
}

// MirrorConfig names an optional CloudFront KeyValueStore that receives the same CIDRs.
type MirrorConfig struct {
	KVSName string `toml:"kvs-name" yaml:"kvs-name"`
	Region  string `toml:"region" yaml:"region"`
}

// Default returns a Config with every optional setting filled in and no targets.
func Default() Config {
	return Config{
		OnFetchError:     OnFetchErrorReconcileEmpty,
		EntryDescription: prefixlist.DefaultDescription,
		LogLevel:         "info",
		LogFormat:        "text",
		Source: SourceConfig{
			URL:     source.DefaultURL,
			Key:     source.DefaultKey,
			Timeout: Duration(source.DefaultTimeout),
		},
		Wait: WaitConfig{
			Interval:    Duration(prefixlist.DefaultPollInterval),
			MaxAttempts: prefixlist.DefaultMaxAttempts,
		},
		Mirror: MirrorConfig{
			Region: "us-east-1",
		},
	}
}

// Load reads the config file at path over the defaults, then applies
// PREFIXSYNC_TARGETS. An empty path falls back to PREFIXSYNC_CONFIG and then
// DefaultPath. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file, use defaults/flags/env
	case err != nil:
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := decode(path, data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if raw := os.Getenv(EnvTargets); strings.TrimSpace(raw) != "" {
		targets, err := ParseTargets(raw)
		if err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", EnvTargets, err)
		}
		cfg.Targets = targets
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.Decode(string(data), cfg)
		return err
	}
}

// ParseTargets decodes a YAML (or JSON) list of targets.
func ParseTargets(raw string) ([]Target, error) {
	var targets []Target
	if err := yaml.Unmarshal([]byte(raw), &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// ParseTargetFlag parses the compact "region:ipv4-list:ipv6-list[:role-arn]" form.
// Either list may be left empty.
func ParseTargetFlag(s string) (Target, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 {
		return Target{}, fmt.Errorf("invalid target %q: expected region:ipv4-list:ipv6-list[:role-arn]", s)
	}
	t := Target{Region: parts[0], IPv4ListID: parts[1], IPv6ListID: parts[2]}
	if len(parts) == 4 {
		t.RoleARN = parts[3]
	}
	return t, nil
}

// Validate checks the config for errors that would fail the run midway.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("no targets configured (set [[targets]] in the config file, %s, or --target)", EnvTargets)
	}
	for i, t := range c.Targets {
		if t.Region == "" {
			return fmt.Errorf("target %d: region is required", i)
		}
		if t.IPv4ListID == "" && t.IPv6ListID == "" {
			return fmt.Errorf("target %d (%s): at least one of ipv4 or ipv6 is required", i, t.Region)
		}
		for _, id := range []string{t.IPv4ListID, t.IPv6ListID} {
			if id != "" && !strings.HasPrefix(id, "pl-") {
				return fmt.Errorf("target %d (%s): %q is not a prefix list ID", i, t.Region, id)
			}
		}
		if t.RoleARN != "" && !strings.HasPrefix(t.RoleARN, "arn:") {
			return fmt.Errorf("target %d (%s): %q is not a role ARN", i, t.Region, t.RoleARN)
		}
	}
	switch c.OnFetchError {
	case OnFetchErrorReconcileEmpty, OnFetchErrorSkip:
	default:
		return fmt.Errorf("on-fetch-error must be %q or %q, got %q", OnFetchErrorReconcileEmpty, OnFetchErrorSkip, c.OnFetchError)
	}
	if c.Wait.Interval <= 0 {
		return fmt.Errorf("wait.interval must be positive, got %s", time.Duration(c.Wait.Interval))
	}
	if c.Wait.MaxAttempts < 0 {
		return fmt.Errorf("wait.max-attempts must not be negative, got %d", c.Wait.MaxAttempts)
	}
	if c.Source.Timeout < 0 {
		return fmt.Errorf("source.timeout must not be negative, got %s", time.Duration(c.Source.Timeout))
	}
	return nil
}
