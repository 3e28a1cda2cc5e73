// Package reconcile aligns the persisted snapshot with the catalog state a
// pass just synthesized. It is the only component that decides entry
// transitions; the store applies them in one transaction.
package reconcile

import (
	"context"
	"sort"

	"github.com/telos-labs/catalogd/internal/aggregate"
	"github.com/telos-labs/catalogd/internal/record"
	"github.com/telos-labs/catalogd/internal/store"
)

// Verdict is the asset-hosting collaborator's answer for one asset
// reference. The reconciler records the determination; it never inspects
// binaries itself.
type Verdict int

const (
	VerdictValid Verdict = iota
	VerdictCorrupt
)

// Checker reports whether an asset reference is still retrievable.
type Checker interface {
	Check(ctx context.Context, assetRef string) Verdict
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, assetRef string) Verdict

func (f CheckerFunc) Check(ctx context.Context, assetRef string) Verdict {
	return f(ctx, assetRef)
}

// Input is everything a reconciliation run reads.
type Input struct {
	// Prior is the persisted entry set as of the pass snapshot.
	Prior []store.Entry
	// Entries is the aggregated catalog state the pass synthesized from,
	// built over records with corrupt-marked keys already filtered out.
	Entries []aggregate.Entry
	// Snapshot is the full record set before corrupt filtering. A corrupt
	// entry survives only while a backing record still exists for it.
	Snapshot []record.AVR
}

// RemoveKey identifies one entry to delete from the snapshot.
type RemoveKey struct {
	BundleID   string
	VersionKey string
}

// Corrections is the operator-facing summary of what reconciliation wants
// fixed outside this process.
type Corrections struct {
	// Repair lists bundle identifiers that have at least one corrupt entry
	// and need their assets re-published.
	Repair []string
	// Remove lists entries deleted this pass.
	Remove []RemoveKey
}

// Plan is the transition set one reconciliation run produces. Applying the
// same plan's inputs again yields an empty plan.
type Plan struct {
	Upserts []store.Entry
	Removes []store.Entry

	Corrections Corrections

	Added        int
	Updated      int
	Repaired     int
	CorruptCount int
	RemovedCount int
}

// Reconcile diffs the desired catalog state against the prior snapshot.
// Desired entries are checked for asset validity; prior entries with no
// surviving counterpart are removed. Corrupt entries are kept under their
// marker until a fresh record supersedes them or nothing backs them anymore.
func Reconcile(ctx context.Context, in Input, checker Checker) Plan {
	var plan Plan

	prior := make(map[RemoveKey]store.Entry, len(in.Prior))
	for _, e := range in.Prior {
		prior[RemoveKey{e.BundleID, e.VersionKey}] = e
	}

	backed := make(map[RemoveKey]bool, len(in.Snapshot))
	for _, r := range in.Snapshot {
		backed[RemoveKey{r.BundleID, store.VersionKey(r)}] = true
	}

	desired := make(map[RemoveKey]bool)
	corruptBundles := make(map[string]bool)

	for _, entry := range in.Entries {
		for _, r := range entry.Retained {
			key := RemoveKey{r.BundleID, store.VersionKey(r)}
			desired[key] = true

			old, existed := prior[key]
			verdict := checker.Check(ctx, r.AssetRef)

			switch {
			case !existed && verdict == VerdictValid:
				plan.Upserts = append(plan.Upserts, store.Entry{
					BundleID: key.BundleID, VersionKey: key.VersionKey, State: store.StatePresent,
				})
				plan.Added++
			case !existed:
				plan.Upserts = append(plan.Upserts, store.Entry{
					BundleID: key.BundleID, VersionKey: key.VersionKey, State: store.StateCorrupt,
				})
				plan.CorruptCount++
				corruptBundles[key.BundleID] = true
			case old.State == store.StatePresent && verdict == VerdictCorrupt:
				plan.Upserts = append(plan.Upserts, store.Entry{
					BundleID: key.BundleID, VersionKey: key.VersionKey, State: store.StateCorrupt,
				})
				plan.CorruptCount++
				corruptBundles[key.BundleID] = true
			case old.State == store.StateCorrupt && verdict == VerdictValid:
				// A superseding record restored the asset.
				plan.Upserts = append(plan.Upserts, store.Entry{
					BundleID: key.BundleID, VersionKey: key.VersionKey, State: store.StatePresent,
				})
				plan.Repaired++
			case old.State == store.StateCorrupt:
				// Still corrupt. Leave the marker untouched so supersession
				// timestamps stay meaningful.
				corruptBundles[key.BundleID] = true
			case r.DiscoveredAt.After(old.UpdatedAt):
				// Present entry whose backing record was rediscovered with a
				// fresher payload. Restating it refreshes the timestamp.
				plan.Upserts = append(plan.Upserts, store.Entry{
					BundleID: key.BundleID, VersionKey: key.VersionKey, State: store.StatePresent,
				})
				plan.Updated++
			}
		}
	}

	for _, e := range in.Prior {
		key := RemoveKey{e.BundleID, e.VersionKey}
		if desired[key] {
			continue
		}
		if e.State == store.StateCorrupt && backed[key] {
			// Corrupt entries outlive synthesis until purged or unbacked.
			corruptBundles[e.BundleID] = true
			continue
		}
		plan.Removes = append(plan.Removes, e)
		plan.Corrections.Remove = append(plan.Corrections.Remove, key)
		plan.RemovedCount++
	}

	for id := range corruptBundles {
		plan.Corrections.Repair = append(plan.Corrections.Repair, id)
	}
	sort.Strings(plan.Corrections.Repair)

	return plan
}

// FilterCorrupt drops records whose entry carries a corrupt marker, except
// records discovered after the marker was set. Those supersede the marker
// and get a fresh validity check during reconciliation.
func FilterCorrupt(records []record.AVR, prior []store.Entry) []record.AVR {
	corrupt := make(map[RemoveKey]store.Entry)
	for _, e := range prior {
		if e.State == store.StateCorrupt {
			corrupt[RemoveKey{e.BundleID, e.VersionKey}] = e
		}
	}
	if len(corrupt) == 0 {
		return records
	}

	kept := records[:0:0]
	for _, r := range records {
		e, ok := corrupt[RemoveKey{r.BundleID, store.VersionKey(r)}]
		if ok && !r.DiscoveredAt.After(e.UpdatedAt) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}
