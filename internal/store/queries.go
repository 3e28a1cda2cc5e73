package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/telos-labs/catalogd/internal/record"
)

// ErrSnapshotConflict is returned by CommitPass when another pass committed
// after this one took its snapshot. The later pass must rerun against a
// fresh snapshot; nothing is partially merged.
var ErrSnapshotConflict = errors.New("snapshot committed by a concurrent pass")

// recordTimeLayout is RFC 3339 with a fixed-width fraction, so the text
// comparison in UpsertRecord orders timestamps chronologically.
const recordTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record operations

// UpsertRecord inserts a version record. An existing row for the same
// (bundle_id, version, variant, tweak_key) is replaced only when the
// incoming record was discovered more recently; a stale duplicate arriving
// late never overwrites a fresher payload.
func (s *Store) UpsertRecord(r record.AVR) error {
	entitlementsJSON, err := json.Marshal(r.Entitlements)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlements: %w", err)
	}
	screenshotsJSON, err := json.Marshal(r.Screenshots)
	if err != nil {
		return fmt.Errorf("failed to marshal screenshots: %w", err)
	}

	query := `
		INSERT INTO records
		(bundle_id, version, variant, tweak_key, tweak_name, build, size_bytes,
		 asset_ref, icon_ref, min_os, entitlements, screenshots, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bundle_id, version, variant, tweak_key) DO UPDATE SET
			tweak_name = excluded.tweak_name,
			build = excluded.build,
			size_bytes = excluded.size_bytes,
			asset_ref = excluded.asset_ref,
			icon_ref = excluded.icon_ref,
			min_os = excluded.min_os,
			entitlements = excluded.entitlements,
			screenshots = excluded.screenshots,
			discovered_at = excluded.discovered_at
		WHERE excluded.discovered_at > records.discovered_at
	`

	_, err = s.db.Exec(query,
		r.BundleID,
		r.Version,
		string(r.Variant),
		record.CanonicalTweak(r.TweakName),
		r.TweakName,
		r.Build,
		r.SizeBytes,
		r.AssetRef,
		r.IconRef,
		r.MinOS,
		string(entitlementsJSON),
		string(screenshotsJSON),
		r.DiscoveredAt.UTC().Format(recordTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s %s: %w", r.BundleID, r.Version, err)
	}

	return nil
}

// ListRecords returns every persisted version record, ordered by primary
// key so callers see a stable sequence.
func (s *Store) ListRecords() ([]record.AVR, error) {
	query := `
		SELECT bundle_id, version, variant, tweak_key, tweak_name, build, size_bytes,
		       asset_ref, icon_ref, min_os, entitlements, screenshots, discovered_at
		FROM records
		ORDER BY bundle_id, version, variant, tweak_key
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []record.AVR
	for rows.Next() {
		var r record.AVR
		var variant, tweakKey, discoveredAt string
		var tweakName, build, assetRef, iconRef, minOS sql.NullString
		var entitlementsJSON, screenshotsJSON sql.NullString

		err := rows.Scan(
			&r.BundleID,
			&r.Version,
			&variant,
			&tweakKey,
			&tweakName,
			&build,
			&r.SizeBytes,
			&assetRef,
			&iconRef,
			&minOS,
			&entitlementsJSON,
			&screenshotsJSON,
			&discoveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}

		r.Variant = record.Variant(variant)
		r.TweakName = tweakName.String
		r.Build = build.String
		r.AssetRef = assetRef.String
		r.IconRef = iconRef.String
		r.MinOS = minOS.String

		r.DiscoveredAt, err = time.Parse(time.RFC3339Nano, discoveredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse discovered_at for %s: %w", r.BundleID, err)
		}

		if entitlementsJSON.Valid && entitlementsJSON.String != "" {
			if err := json.Unmarshal([]byte(entitlementsJSON.String), &r.Entitlements); err != nil {
				return nil, fmt.Errorf("failed to unmarshal entitlements for %s: %w", r.BundleID, err)
			}
		}
		if screenshotsJSON.Valid && screenshotsJSON.String != "" {
			if err := json.Unmarshal([]byte(screenshotsJSON.String), &r.Screenshots); err != nil {
				return nil, fmt.Errorf("failed to unmarshal screenshots for %s: %w", r.BundleID, err)
			}
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// Entry operations

// ListEntries returns every persisted catalog entry.
func (s *Store) ListEntries() ([]Entry, error) {
	query := `
		SELECT bundle_id, version_key, state, updated_at
		FROM entries
		ORDER BY bundle_id, version_key
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var state, updatedAt string

		if err := rows.Scan(&e.BundleID, &e.VersionKey, &state, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}

		e.State = EntryState(state)
		e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at for %s: %w", e.BundleID, err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

// Generation returns the snapshot generation counter. A pass records it at
// snapshot time and presents it again at commit; a mismatch means another
// pass got there first.
func (s *Store) Generation() (int64, error) {
	var gen int64
	err := s.db.QueryRow("SELECT generation FROM snapshot_state WHERE id = 1").Scan(&gen)
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot generation: %w", err)
	}
	return gen, nil
}

// Commit is everything a pass writes to the snapshot, applied atomically.
type Commit struct {
	ExpectedGeneration int64
	Upserts            []Entry      // entries to create or restate
	Removes            []Entry      // entries to delete, with their backing records
	Summary            PassSummary
}

// CommitPass applies a pass's entry transitions and summary in a single
// transaction, guarded by the generation counter. On ErrSnapshotConflict
// nothing is written.
func (s *Store) CommitPass(c Commit) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer tx.Rollback()

	var gen int64
	if err := tx.QueryRow("SELECT generation FROM snapshot_state WHERE id = 1").Scan(&gen); err != nil {
		return fmt.Errorf("failed to read generation: %w", err)
	}
	if gen != c.ExpectedGeneration {
		return fmt.Errorf("expected generation %d, found %d: %w", c.ExpectedGeneration, gen, ErrSnapshotConflict)
	}

	now := time.Now().UTC()

	for _, e := range c.Upserts {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO entries (bundle_id, version_key, state, updated_at)
			VALUES (?, ?, ?, ?)`,
			e.BundleID, e.VersionKey, string(e.State), now.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert entry %s %s: %w", e.BundleID, e.VersionKey, err)
		}
	}

	for _, e := range c.Removes {
		if _, err := tx.Exec(`DELETE FROM entries WHERE bundle_id = ? AND version_key = ?`,
			e.BundleID, e.VersionKey); err != nil {
			return fmt.Errorf("failed to remove entry %s %s: %w", e.BundleID, e.VersionKey, err)
		}
		version, variant, tweakKey, ok := splitVersionKey(e.VersionKey)
		if !ok {
			continue
		}
		if _, err := tx.Exec(`
			DELETE FROM records
			WHERE bundle_id = ? AND version = ? AND variant = ? AND tweak_key = ?`,
			e.BundleID, version, variant, tweakKey); err != nil {
			return fmt.Errorf("failed to remove record %s %s: %w", e.BundleID, e.VersionKey, err)
		}
	}

	droppedJSON, err := json.Marshal(c.Summary.DroppedBundleIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal dropped bundle ids: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO passes
		(started_at, committed_at, records_processed, records_dropped, corrupt_count, removed_count, dropped_bundle_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Summary.StartedAt.UTC().Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		c.Summary.RecordsProcessed,
		c.Summary.RecordsDropped,
		c.Summary.CorruptCount,
		c.Summary.RemovedCount,
		string(droppedJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pass summary: %w", err)
	}

	_, err = tx.Exec(`UPDATE snapshot_state SET generation = generation + 1, committed_at = ? WHERE id = 1`,
		now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to bump generation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pass: %w", err)
	}

	return nil
}

// PurgeCorrupt deletes corrupt entries and their backing records. With an
// empty bundleID every corrupt entry goes; otherwise only that bundle's.
// Returns the number of entries purged.
func (s *Store) PurgeCorrupt(bundleID string) (int, error) {
	query := `SELECT bundle_id, version_key FROM entries WHERE state = ?`
	args := []any{string(StateCorrupt)}
	if bundleID != "" {
		query += ` AND bundle_id = ?`
		args = append(args, bundleID)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to list corrupt entries: %w", err)
	}
	var victims []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.BundleID, &e.VersionKey); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan corrupt entry: %w", err)
		}
		victims = append(victims, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating corrupt entries: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge: %w", err)
	}
	defer tx.Rollback()

	for _, e := range victims {
		if _, err := tx.Exec(`DELETE FROM entries WHERE bundle_id = ? AND version_key = ?`,
			e.BundleID, e.VersionKey); err != nil {
			return 0, fmt.Errorf("failed to purge entry %s %s: %w", e.BundleID, e.VersionKey, err)
		}
		version, variant, tweakKey, ok := splitVersionKey(e.VersionKey)
		if !ok {
			continue
		}
		if _, err := tx.Exec(`
			DELETE FROM records
			WHERE bundle_id = ? AND version = ? AND variant = ? AND tweak_key = ?`,
			e.BundleID, version, variant, tweakKey); err != nil {
			return 0, fmt.Errorf("failed to purge record %s %s: %w", e.BundleID, e.VersionKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}

	return len(victims), nil
}

// Pass summary operations

// LastPass returns the most recent pass summary, or nil when no pass has
// committed yet.
func (s *Store) LastPass() (*PassSummary, error) {
	query := `
		SELECT id, started_at, committed_at, records_processed, records_dropped,
		       corrupt_count, removed_count, dropped_bundle_ids
		FROM passes
		ORDER BY id DESC
		LIMIT 1
	`

	var p PassSummary
	var startedAt, committedAt string
	var droppedJSON sql.NullString

	err := s.db.QueryRow(query).Scan(
		&p.ID,
		&startedAt,
		&committedAt,
		&p.RecordsProcessed,
		&p.RecordsDropped,
		&p.CorruptCount,
		&p.RemovedCount,
		&droppedJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last pass: %w", err)
	}

	p.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	p.CommittedAt, err = time.Parse(time.RFC3339Nano, committedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse committed_at: %w", err)
	}
	if droppedJSON.Valid && droppedJSON.String != "" {
		if err := json.Unmarshal([]byte(droppedJSON.String), &p.DroppedBundleIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dropped bundle ids: %w", err)
		}
	}

	return &p, nil
}

// splitVersionKey reverses VersionKey. The version itself may contain '|'
// only if upstream put one there; splitting from the right keeps variant
// and tweak key intact in that case.
func splitVersionKey(key string) (version, variant, tweakKey string, ok bool) {
	last := strings.LastIndexByte(key, '|')
	if last < 0 {
		return "", "", "", false
	}
	tweakKey = key[last+1:]
	rest := key[:last]
	mid := strings.LastIndexByte(rest, '|')
	if mid < 0 {
		return "", "", "", false
	}
	return rest[:mid], rest[mid+1:], tweakKey, true
}
