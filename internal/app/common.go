package app

import (
	"fmt"
	"path/filepath"

	"github.com/telos-labs/catalogd/internal/aggregate"
	"github.com/telos-labs/catalogd/internal/assets"
	"github.com/telos-labs/catalogd/internal/config"
	"github.com/telos-labs/catalogd/internal/engine"
	"github.com/telos-labs/catalogd/internal/ingest"
	"github.com/telos-labs/catalogd/internal/lookup"
	"github.com/telos-labs/catalogd/internal/reconcile"
	"github.com/telos-labs/catalogd/internal/store"
)

// loadConfig reads the config file named by --config, falling back to the
// XDG config directory.
func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config directory: %w", err)
		}
		path = filepath.Join(dir, "config.yml")
	}
	return config.Load(path)
}

// openStore opens the snapshot database and ensures the schema exists.
func openStore() (*store.Store, error) {
	path, err := getDBPath()
	if err != nil {
		return nil, err
	}
	st, err := store.New(path)
	if err != nil {
		return nil, err
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// buildChecker constructs the asset validity prober, or nil when asset
// checking is disabled.
func buildChecker(cfg *config.Config) reconcile.Checker {
	if !cfg.AssetCheck.Enabled {
		return nil
	}
	return assets.NewBreakerChecker(assets.NewChecker(
		assets.WithMaxRetries(cfg.AssetCheck.MaxRetries),
		assets.WithBaseDelay(cfg.AssetBaseDelay()),
		assets.WithUserAgent(cfg.AssetCheck.UserAgent),
	))
}

// buildLookup loads the display metadata table named by the config.
func buildLookup(cfg *config.Config) (aggregate.Lookup, error) {
	table, err := lookup.Load(cfg.LookupPath)
	if err != nil {
		return nil, err
	}
	return table.Func(), nil
}

// buildEngine assembles a fully wired engine for one invocation. The
// sweeper runs inside each pass so the inbox drains with a consumer
// attached.
func buildEngine(cfg *config.Config, st *store.Store, queue *ingest.Queue, sweeper engine.Sweeper) (*engine.Engine, error) {
	lk, err := buildLookup(cfg)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Options{
		Store:     st,
		Queue:     queue,
		Sweeper:   sweeper,
		Checker:   buildChecker(cfg),
		Lookup:    lk,
		Source:    cfg.CatalogSource(),
		Policy:    cfg.Policy(),
		Overrides: cfg.PriorityOverrides(),
		OutputDir: cfg.OutputDir,
		Logger:    logger,
	})
}
