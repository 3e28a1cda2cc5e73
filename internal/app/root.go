// Package app wires the catalogd CLI commands.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgPath string
	dbPath  string
	verbose bool

	logger *zap.Logger

	// RootCmd is the root command for catalogd
	RootCmd = &cobra.Command{
		Use:   "catalogd",
		Short: "IPA metadata aggregation and catalog synthesis",
		Long: `catalogd ingests per-archive IPA metadata records, aggregates them per
bundle identifier, and synthesizes catalog documents for four installer
clients (AltStore, Scarlet, Esign, Feather) from one consistent snapshot.

Each pass ranks an app's versions (operator overrides first, then most
recently discovered), applies the retention policy, and reconciles the
persisted snapshot: assets that vanished from the CDN are flagged corrupt
and withheld from the catalogs until republished or purged.

Quick Start:
  1. Drop raw record JSON files into the inbox directory
  2. catalogd generate        # one synthesis pass
  3. catalogd watch           # keep regenerating as records arrive
  4. catalogd status          # inspect the snapshot

Examples:
  # Run one pass against the default config
  catalogd generate

  # Watch the inbox and regenerate every interval
  catalogd watch

  # Show catalog and snapshot state
  catalogd status

  # Drop corrupt entries for one app
  catalogd purge com.example.app`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("catalogd: IPA metadata aggregation and catalog synthesis")
			fmt.Println()
			fmt.Println("Run 'catalogd generate' to synthesize the catalogs once.")
			fmt.Println("Run 'catalogd --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/catalogd/config.yml)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "snapshot database path (default: ~/.catalogd/catalogd.db)")
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// getDBPath returns the database path, using the flag value or default
func getDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	catalogdDir := filepath.Join(home, ".catalogd")
	if err := os.MkdirAll(catalogdDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create catalogd directory: %w", err)
	}

	return filepath.Join(catalogdDir, "catalogd.db"), nil
}
