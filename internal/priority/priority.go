// Package priority computes the version ranking for one bundle identifier.
//
// Operators can pin an explicit preference order per bundle identifier (the
// override table); everything not pinned falls back to a deterministic
// default ranking. Given the same records and table, the resolver always
// produces byte-identical order: every comparison bottoms out in record
// fields, never map iteration or the wall clock.
package priority

import (
	"sort"
	"strings"
	"time"

	"github.com/telos-labs/catalogd/internal/record"
)

// UnmodifiedKey is the sentinel override-table entry that ranks the stock
// build of an app.
const UnmodifiedKey = string(record.Unmodified)

// Overrides maps a bundle identifier to its operator-supplied preference
// list of variant keys (tweak names, plus the "unmodified" sentinel).
// Absent bundle identifiers use the default ranking.
type Overrides map[string][]string

// Normalize canonicalizes every variant key in the table so lookups match
// the canonical tweak keys produced by the record package.
func (o Overrides) Normalize() Overrides {
	if len(o) == 0 {
		return o
	}
	out := make(Overrides, len(o))
	for bundleID, keys := range o {
		normalized := make([]string, 0, len(keys))
		for _, k := range keys {
			k = record.CanonicalTweak(k)
			if k != "" {
				normalized = append(normalized, k)
			}
		}
		out[strings.TrimSpace(bundleID)] = normalized
	}
	return out
}

// Order ranks the records of a single bundle identifier, most preferred
// first. The input slice is not modified.
//
// Variant keys listed in the override table come first, in list order; keys
// the table names but no record carries are skipped. Unlisted keys follow
// by freshest discovery, newest first, with unmodified before tweaked only
// when equally fresh. Within one variant key, records rank by discovery
// time descending with a version-string descending tie-break (best effort:
// versions are not guaranteed to sort semantically).
func Order(bundleID string, records []record.AVR, overrides Overrides) []record.AVR {
	if len(records) == 0 {
		return nil
	}

	rank := listedRanks(overrides[bundleID])

	out := make([]record.AVR, len(records))
	copy(out, records)

	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := out[i].VariantKey(), out[j].VariantKey()
		if ki != kj {
			if c := compareKeys(ki, kj, rank, out, i, j); c != 0 {
				return c < 0
			}
		}
		// Same variant key: discovery time descending.
		if !out[i].DiscoveredAt.Equal(out[j].DiscoveredAt) {
			return out[i].DiscoveredAt.After(out[j].DiscoveredAt)
		}
		// Identical timestamps: version descending keeps the order stable
		// across runs.
		return out[i].Version > out[j].Version
	})

	return out
}

// compareKeys orders two distinct variant keys. Returns <0 when ki ranks
// before kj.
func compareKeys(ki, kj string, rank map[string]int, records []record.AVR, i, j int) int {
	ri, iListed := rank[ki]
	rj, jListed := rank[kj]

	switch {
	case iListed && jListed:
		return ri - rj
	case iListed:
		return -1
	case jListed:
		return 1
	}

	// Neither key is pinned: the key's freshest discovery wins, newest
	// first. Stock builds have no inherent precedence over tweaks here;
	// only the override table grants that.
	ni := newestForKey(records, ki)
	nj := newestForKey(records, kj)
	if !ni.Equal(nj) {
		if ni.After(nj) {
			return -1
		}
		return 1
	}

	// Equal freshness: stock before tweaked.
	iStock := ki == UnmodifiedKey
	jStock := kj == UnmodifiedKey
	if iStock != jStock {
		if iStock {
			return -1
		}
		return 1
	}

	// Lexicographic tweak key as the final deterministic tie-break.
	return strings.Compare(ki, kj)
}

// newestForKey returns the latest discovery time among records carrying the
// given variant key. Linear scan; per-bundle record counts are small.
func newestForKey(records []record.AVR, key string) time.Time {
	var newest time.Time
	for _, r := range records {
		if r.VariantKey() == key && r.DiscoveredAt.After(newest) {
			newest = r.DiscoveredAt
		}
	}
	return newest
}

// listedRanks maps each override-listed key to its position.
func listedRanks(listed []string) map[string]int {
	if len(listed) == 0 {
		return nil
	}
	rank := make(map[string]int, len(listed))
	for i, k := range listed {
		if _, seen := rank[k]; !seen {
			rank[k] = i
		}
	}
	return rank
}
