package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telos-labs/catalogd/internal/ingest"
	"github.com/telos-labs/catalogd/internal/output"
	"github.com/telos-labs/catalogd/internal/store"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one catalog synthesis pass",
	Long: `Sweep the inbox, aggregate every known record, and synthesize all four
catalog documents from one consistent snapshot.

The pass commits its snapshot changes and the documents atomically: on any
failure (including a concurrent pass winning the commit) nothing is
published.`,
	Example: `  # Synthesize once
  catalogd generate

  # Synthesize with an explicit config
  catalogd generate --config ./config.yml`,
	RunE: runGenerate,
}

func init() {
	RootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	queue := ingest.NewQueue(cfg.Ingest.QueueSize)
	watcher, err := ingest.NewWatcher(cfg.Ingest.InboxDir, queue, logger)
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg, st, queue, watcher)
	if err != nil {
		return err
	}

	res, err := eng.RunPass(cmd.Context())
	if errors.Is(err, store.ErrSnapshotConflict) {
		return fmt.Errorf("another pass committed first, rerun generate: %w", err)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Synthesized %d apps into %d documents:\n", res.Apps, len(res.Documents))
	for _, doc := range res.Documents {
		fmt.Println("  " + doc)
	}
	fmt.Println()
	last, err := st.LastPass()
	if err != nil {
		return err
	}
	fmt.Print(output.RenderPassSummary(last))
	if corrections := output.RenderCorrections(res.Corrections); corrections != "" {
		fmt.Println()
		fmt.Print(corrections)
	}

	return nil
}
