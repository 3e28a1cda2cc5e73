package store

import (
	"fmt"
	"time"

	"github.com/telos-labs/catalogd/internal/record"
)

// EntryState is a catalog entry's lifecycle state in the snapshot.
// Removed entries have no row; deletion is the transition.
type EntryState string

const (
	StatePresent EntryState = "present"
	StateCorrupt EntryState = "corrupt"
)

// Entry is one persisted catalog entry: a (bundle identifier, version key)
// pair and its state.
type Entry struct {
	BundleID   string
	VersionKey string
	State      EntryState
	UpdatedAt  time.Time
}

// VersionKey renders an AVR's identity within one bundle: version, variant
// and canonical tweak key joined by '|'. The version may itself contain
// the separator; splitVersionKey splits from the right so variant and
// tweak key stay unambiguous.
func VersionKey(r record.AVR) string {
	return fmt.Sprintf("%s|%s|%s", r.Version, r.Variant, record.CanonicalTweak(r.TweakName))
}

// PassSummary is one pass's outcome as reported to operators.
type PassSummary struct {
	ID               int64
	StartedAt        time.Time
	CommittedAt      time.Time
	RecordsProcessed int
	RecordsDropped   int
	CorruptCount     int
	RemovedCount     int
	DroppedBundleIDs []string
}
