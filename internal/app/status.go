package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telos-labs/catalogd/internal/aggregate"
	"github.com/telos-labs/catalogd/internal/output"
	"github.com/telos-labs/catalogd/internal/reconcile"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog apps and snapshot state",
	Long: `Display the aggregated catalog as the next pass would see it, plus the
persisted snapshot's entry states and the outcome of the most recent pass.

Corrupt entries shown here are withheld from the published catalogs until
their assets are republished or they are purged.`,
	Example: `  # Show status
  catalogd status`,
	RunE: runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ListRecords()
	if err != nil {
		return err
	}
	entries, err := st.ListEntries()
	if err != nil {
		return err
	}

	lk, err := buildLookup(cfg)
	if err != nil {
		return err
	}

	filtered := reconcile.FilterCorrupt(records, entries)
	apps := aggregate.Build(filtered, cfg.PriorityOverrides(), cfg.Policy(), lk, time.Now().UTC())

	fmt.Print(output.RenderAppTable(apps))
	fmt.Println()
	fmt.Print(output.RenderEntryTable(entries))
	fmt.Println()

	last, err := st.LastPass()
	if err != nil {
		return err
	}
	fmt.Print(output.RenderPassSummary(last))

	return nil
}
