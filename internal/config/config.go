// Package config provides configuration file parsing for catalogd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/telos-labs/catalogd/internal/aggregate"
	"github.com/telos-labs/catalogd/internal/catalog"
	"github.com/telos-labs/catalogd/internal/priority"
)

// Dir returns the catalogd config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/catalogd if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "catalogd"), nil
}

// Source identifies the published catalog and its presentation.
type Source struct {
	Name        string `yaml:"name"`
	Identifier  string `yaml:"identifier"`
	Subtitle    string `yaml:"subtitle"`
	Description string `yaml:"description"`
	Developer   string `yaml:"developer"`
	IconURL     string `yaml:"icon_url"`
	HeaderURL   string `yaml:"header_url"`
	Website     string `yaml:"website"`
	TintColor   string `yaml:"tint_color"`
}

// Retention limits which versions survive into the catalogs.
type Retention struct {
	MaxVersions int    `yaml:"max_versions"`
	MaxAge      string `yaml:"max_age"` // Go duration string, e.g. "720h"
}

// News controls the synthesized update feed.
type News struct {
	URL     string `yaml:"url"`
	Title   string `yaml:"title"`
	MaxNews int    `yaml:"max_news"`
}

// AssetCheck configures the HEAD prober used during reconciliation.
type AssetCheck struct {
	Enabled    bool   `yaml:"enabled"`
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"` // Go duration string
	UserAgent  string `yaml:"user_agent"`
}

// Ingest configures the inbox watcher and pass scheduling.
type Ingest struct {
	InboxDir  string `yaml:"inbox_dir"`
	QueueSize int    `yaml:"queue_size"`
	Interval  string `yaml:"interval"` // Go duration string between passes
}

// Config is the full catalogd configuration.
type Config struct {
	Source      Source              `yaml:"source"`
	Retention   Retention           `yaml:"retention"`
	Overrides   map[string][]string `yaml:"priority_overrides"`
	News        News                `yaml:"news"`
	AssetCheck  AssetCheck          `yaml:"asset_check"`
	Ingest      Ingest              `yaml:"ingest"`
	OutputDir   string              `yaml:"output_dir"`
	LookupPath  string              `yaml:"lookup_path"`
	MaxFeatured int                 `yaml:"max_featured"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Source: Source{
			Name:       "catalogd source",
			Identifier: "com.catalogd.source",
		},
		Retention: Retention{MaxVersions: 5},
		News:      News{MaxNews: 10},
		AssetCheck: AssetCheck{
			Enabled:    true,
			MaxRetries: 3,
			BaseDelay:  "500ms",
			UserAgent:  "catalogd/1.0",
		},
		Ingest: Ingest{
			InboxDir:  "inbox",
			QueueSize: 256,
			Interval:  "30s",
		},
		OutputDir:   "dist",
		LookupPath:  "lookup.yml",
		MaxFeatured: 5,
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults without an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML bytes, layered over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks duration strings and bounds.
func (c *Config) Validate() error {
	if c.Source.Identifier == "" {
		return fmt.Errorf("source.identifier must not be empty")
	}
	if c.Retention.MaxVersions < 0 {
		return fmt.Errorf("retention.max_versions must not be negative")
	}
	for field, s := range map[string]string{
		"retention.max_age":      c.Retention.MaxAge,
		"asset_check.base_delay": c.AssetCheck.BaseDelay,
		"ingest.interval":        c.Ingest.Interval,
	} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", field, err)
		}
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("ingest.queue_size must be positive")
	}
	return nil
}

// Policy converts the retention section into the aggregator's policy.
func (c *Config) Policy() aggregate.Policy {
	p := aggregate.Policy{MaxVersions: c.Retention.MaxVersions}
	if c.Retention.MaxAge != "" {
		if d, err := time.ParseDuration(c.Retention.MaxAge); err == nil {
			p.MaxAge = d
		}
	}
	return p
}

// PriorityOverrides converts the override section into resolver form.
func (c *Config) PriorityOverrides() priority.Overrides {
	return priority.Overrides(c.Overrides).Normalize()
}

// CatalogSource converts the source and news sections into the
// synthesizers' source identity.
func (c *Config) CatalogSource() catalog.Source {
	return catalog.Source{
		Name:          c.Source.Name,
		Identifier:    c.Source.Identifier,
		Subtitle:      c.Source.Subtitle,
		Description:   c.Source.Description,
		DeveloperName: c.Source.Developer,
		IconURL:       c.Source.IconURL,
		HeaderURL:     c.Source.HeaderURL,
		Website:       c.Source.Website,
		TintColor:     c.Source.TintColor,
		NewsURL:       c.News.URL,
		NewsTitle:     c.News.Title,
		MaxNews:       c.News.MaxNews,
		MaxFeatured:   c.MaxFeatured,
	}
}

// PassInterval returns the daemon's pass interval.
func (c *Config) PassInterval() time.Duration {
	if d, err := time.ParseDuration(c.Ingest.Interval); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// AssetBaseDelay returns the prober's backoff base delay.
func (c *Config) AssetBaseDelay() time.Duration {
	if d, err := time.ParseDuration(c.AssetCheck.BaseDelay); err == nil && d > 0 {
		return d
	}
	return 500 * time.Millisecond
}
