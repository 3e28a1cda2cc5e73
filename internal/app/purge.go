package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge [bundle-id]",
	Short: "Delete corrupt entries from the snapshot",
	Long: `Remove corrupt entries and their backing records from the persisted
snapshot. Without an argument every corrupt entry is purged; with a bundle
identifier only that app's corrupt entries go.

Purged versions disappear from the catalogs on the next pass. A record
rediscovered after a purge is treated as brand new.`,
	Example: `  # Purge every corrupt entry
  catalogd purge

  # Purge one app's corrupt entries
  catalogd purge com.example.app`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPurge,
}

func init() {
	RootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	bundleID := ""
	if len(args) == 1 {
		bundleID = args[0]
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.PurgeCorrupt(bundleID)
	if err != nil {
		return err
	}

	switch n {
	case 0:
		fmt.Println("No corrupt entries to purge.")
	case 1:
		fmt.Println("Purged 1 corrupt entry.")
	default:
		fmt.Printf("Purged %d corrupt entries.\n", n)
	}
	if n > 0 {
		fmt.Println("Run 'catalogd generate' to republish the catalogs.")
	}

	return nil
}
