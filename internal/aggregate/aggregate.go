// Package aggregate consolidates normalized version records into one entry
// per bundle identifier and applies the deployment's retention policy.
package aggregate

import (
	"sort"
	"time"

	"github.com/telos-labs/catalogd/internal/priority"
	"github.com/telos-labs/catalogd/internal/record"
)

// Policy limits how many and how old versions survive into the catalogs.
// The zero value retains everything.
type Policy struct {
	// MaxVersions caps retained versions per app. 0 means unbounded.
	MaxVersions int

	// MaxAge drops versions older than this from the retained set. 0 means
	// unbounded. Age is measured against the pass start time.
	MaxAge time.Duration
}

// Info is the presentation metadata attached from the lookup collaborator.
type Info struct {
	Name        string
	Developer   string
	Subtitle    string
	Description string
	IconURL     string
	Screenshots []string
}

// Lookup supplies presentation metadata for a bundle identifier. A false
// return is non-fatal; the entry falls back to its bundle identifier.
type Lookup func(bundleID string) (Info, bool)

// Entry is one bundle identifier's consolidated view, rebuilt on every
// pass. Versions holds the full priority order; Retained is the prefix of
// it that survives the policy and feeds the catalog synthesizers.
type Entry struct {
	BundleID string
	Info     Info
	Versions []record.AVR
	Retained []record.AVR
}

// Build groups records by bundle identifier, ranks each group, applies the
// retention policy, and attaches lookup metadata. Entries whose retained
// set is empty are dropped entirely: the app disappears from every catalog
// until a new record arrives. The result is sorted by bundle identifier.
//
// passStart anchors the MaxAge cutoff so a pass's output depends only on
// its input snapshot, never on when a comparison happens to run.
func Build(records []record.AVR, overrides priority.Overrides, policy Policy, lookup Lookup, passStart time.Time) []Entry {
	deduped := record.Dedup(records)

	groups := make(map[string][]record.AVR)
	for _, r := range deduped {
		groups[r.BundleID] = append(groups[r.BundleID], r)
	}

	bundleIDs := make([]string, 0, len(groups))
	for id := range groups {
		bundleIDs = append(bundleIDs, id)
	}
	sort.Strings(bundleIDs)

	entries := make([]Entry, 0, len(bundleIDs))
	for _, id := range bundleIDs {
		versions := priority.Order(id, groups[id], overrides)
		retained := retain(versions, policy, passStart)
		if len(retained) == 0 {
			continue
		}

		entry := Entry{
			BundleID: id,
			Versions: versions,
			Retained: retained,
		}
		if lookup != nil {
			if info, ok := lookup(id); ok {
				entry.Info = info
			}
		}
		if entry.Info.Name == "" {
			entry.Info.Name = id
		}
		entries = append(entries, entry)
	}

	return entries
}

// retain cuts the retained prefix: it stops at the first version older than
// MaxAge or once MaxVersions is reached. Cutting rather than filtering
// keeps Retained a prefix of Versions, which the catalog formats rely on.
func retain(versions []record.AVR, policy Policy, passStart time.Time) []record.AVR {
	limit := len(versions)
	if policy.MaxVersions > 0 && policy.MaxVersions < limit {
		limit = policy.MaxVersions
	}

	if policy.MaxAge <= 0 {
		return versions[:limit]
	}

	cutoff := passStart.Add(-policy.MaxAge)
	for i := 0; i < limit; i++ {
		if versions[i].DiscoveredAt.Before(cutoff) {
			return versions[:i]
		}
	}
	return versions[:limit]
}

// Top returns the most-preferred retained version.
func (e Entry) Top() record.AVR {
	return e.Retained[0]
}
