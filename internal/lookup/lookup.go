// Package lookup provides operator-maintained display metadata for bundle
// identifiers. The table is optional; apps without an entry fall back to
// their bundle identifier in the catalogs.
package lookup

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/telos-labs/catalogd/internal/aggregate"
)

type appInfo struct {
	Name        string   `yaml:"name"`
	Developer   string   `yaml:"developer"`
	Subtitle    string   `yaml:"subtitle"`
	Description string   `yaml:"description"`
	IconURL     string   `yaml:"icon_url"`
	Screenshots []string `yaml:"screenshots"`
}

type tableFile struct {
	Apps map[string]appInfo `yaml:"apps"`
}

// Table maps bundle identifiers to display metadata.
type Table struct {
	apps map[string]appInfo
}

// Load reads a lookup table from a YAML file. A missing file yields an
// empty table, not an error.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Table{apps: map[string]appInfo{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lookup table: %w", err)
	}
	return Parse(data)
}

// Parse reads a lookup table from YAML bytes.
func Parse(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse lookup table: %w", err)
	}
	if file.Apps == nil {
		file.Apps = map[string]appInfo{}
	}
	return &Table{apps: file.Apps}, nil
}

// Info returns display metadata for a bundle identifier.
func (t *Table) Info(bundleID string) (aggregate.Info, bool) {
	app, ok := t.apps[bundleID]
	if !ok {
		return aggregate.Info{}, false
	}
	return aggregate.Info{
		Name:        app.Name,
		Developer:   app.Developer,
		Subtitle:    app.Subtitle,
		Description: app.Description,
		IconURL:     app.IconURL,
		Screenshots: app.Screenshots,
	}, true
}

// Func adapts the table to the aggregator's lookup signature.
func (t *Table) Func() aggregate.Lookup {
	return t.Info
}

// Len reports how many bundle identifiers carry metadata.
func (t *Table) Len() int {
	return len(t.apps)
}
