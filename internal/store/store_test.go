package store

import (
	"errors"
	"testing"
	"time"

	"github.com/telos-labs/catalogd/internal/record"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.CreateSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return s
}

func testRecord(bundleID, version string, variant record.Variant, tweak string) record.AVR {
	return record.AVR{
		BundleID:     bundleID,
		Version:      version,
		Variant:      variant,
		TweakName:    tweak,
		SizeBytes:    1024,
		AssetRef:     "https://cdn.example.com/app.ipa",
		Entitlements: []string{"aps-environment"},
		DiscoveredAt: time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
	}
}

func TestUpsertAndListRecords(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	r := testRecord("com.example.app", "1.0", record.Tweaked, "uYouPlus")
	if err := s.UpsertRecord(r); err != nil {
		t.Fatalf("UpsertRecord failed: %v", err)
	}

	records, err := s.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	got := records[0]
	if got.BundleID != r.BundleID || got.Version != r.Version {
		t.Errorf("identity mismatch: got %s %s", got.BundleID, got.Version)
	}
	if got.Variant != record.Tweaked || got.TweakName != "uYouPlus" {
		t.Errorf("variant mismatch: got %s %q", got.Variant, got.TweakName)
	}
	if !got.DiscoveredAt.Equal(r.DiscoveredAt) {
		t.Errorf("expected DiscoveredAt %v, got %v", r.DiscoveredAt, got.DiscoveredAt)
	}
	if len(got.Entitlements) != 1 || got.Entitlements[0] != "aps-environment" {
		t.Errorf("entitlements mismatch: got %v", got.Entitlements)
	}
}

func TestUpsertRecord_ReplacesSameKey(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	r := testRecord("com.example.app", "1.0", record.Unmodified, "")
	if err := s.UpsertRecord(r); err != nil {
		t.Fatalf("UpsertRecord failed: %v", err)
	}

	r.AssetRef = "https://cdn.example.com/replaced.ipa"
	r.DiscoveredAt = r.DiscoveredAt.Add(time.Hour)
	if err := s.UpsertRecord(r); err != nil {
		t.Fatalf("UpsertRecord replace failed: %v", err)
	}

	records, err := s.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after replace, got %d", len(records))
	}
	if records[0].AssetRef != "https://cdn.example.com/replaced.ipa" {
		t.Errorf("expected replaced asset ref, got %q", records[0].AssetRef)
	}
}

func TestUpsertRecord_StaleDuplicateIgnored(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	fresh := testRecord("com.example.app", "1.0", record.Unmodified, "")
	fresh.AssetRef = "https://cdn.example.com/new.ipa"
	if err := s.UpsertRecord(fresh); err != nil {
		t.Fatalf("UpsertRecord failed: %v", err)
	}

	// The same key arriving later with an older discovery must not win.
	stale := fresh
	stale.AssetRef = "https://cdn.example.com/old.ipa"
	stale.DiscoveredAt = fresh.DiscoveredAt.Add(-96 * time.Hour)
	if err := s.UpsertRecord(stale); err != nil {
		t.Fatalf("UpsertRecord of stale duplicate failed: %v", err)
	}

	records, err := s.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].AssetRef != "https://cdn.example.com/new.ipa" {
		t.Errorf("stale payload survived: asset_ref = %q", records[0].AssetRef)
	}
	if !records[0].DiscoveredAt.Equal(fresh.DiscoveredAt) {
		t.Errorf("expected DiscoveredAt %v, got %v", fresh.DiscoveredAt, records[0].DiscoveredAt)
	}
}

func TestUpsertRecord_TweakCasingSharesRow(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	if err := s.UpsertRecord(testRecord("com.example.app", "1.0", record.Tweaked, "uYouPlus")); err != nil {
		t.Fatalf("UpsertRecord failed: %v", err)
	}
	if err := s.UpsertRecord(testRecord("com.example.app", "1.0", record.Tweaked, "UYOUPLUS")); err != nil {
		t.Fatalf("UpsertRecord failed: %v", err)
	}

	records, err := s.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected casings to collapse to one row, got %d", len(records))
	}
}

func TestGeneration_StartsAtZero(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	gen, err := s.Generation()
	if err != nil {
		t.Fatalf("Generation failed: %v", err)
	}
	if gen != 0 {
		t.Errorf("expected generation 0, got %d", gen)
	}
}

func TestCommitPass_AppliesAndBumpsGeneration(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	r := testRecord("com.example.app", "1.0", record.Unmodified, "")
	if err := s.UpsertRecord(r); err != nil {
		t.Fatalf("UpsertRecord failed: %v", err)
	}

	err := s.CommitPass(Commit{
		ExpectedGeneration: 0,
		Upserts: []Entry{
			{BundleID: r.BundleID, VersionKey: VersionKey(r), State: StatePresent},
		},
		Summary: PassSummary{StartedAt: time.Now(), RecordsProcessed: 1},
	})
	if err != nil {
		t.Fatalf("CommitPass failed: %v", err)
	}

	gen, err := s.Generation()
	if err != nil {
		t.Fatalf("Generation failed: %v", err)
	}
	if gen != 1 {
		t.Errorf("expected generation 1 after commit, got %d", gen)
	}

	entries, err := s.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].State != StatePresent {
		t.Fatalf("expected one present entry, got %+v", entries)
	}
}

func TestCommitPass_ConflictLeavesNothingBehind(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	r := testRecord("com.example.app", "1.0", record.Unmodified, "")

	err := s.CommitPass(Commit{
		ExpectedGeneration: 7, // stale
		Upserts: []Entry{
			{BundleID: r.BundleID, VersionKey: VersionKey(r), State: StatePresent},
		},
		Summary: PassSummary{StartedAt: time.Now()},
	})
	if !errors.Is(err, ErrSnapshotConflict) {
		t.Fatalf("expected ErrSnapshotConflict, got %v", err)
	}

	entries, err := s.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("conflicting commit must write nothing, found %d entries", len(entries))
	}
	if p, err := s.LastPass(); err != nil || p != nil {
		t.Errorf("conflicting commit must not record a pass, got %+v err %v", p, err)
	}
}

func TestCommitPass_RemovesEntryAndRecord(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	r := testRecord("com.example.app", "1.0", record.Tweaked, "uYouPlus")
	if err := s.UpsertRecord(r); err != nil {
		t.Fatalf("UpsertRecord failed: %v", err)
	}
	entry := Entry{BundleID: r.BundleID, VersionKey: VersionKey(r), State: StatePresent}
	if err := s.CommitPass(Commit{ExpectedGeneration: 0, Upserts: []Entry{entry}, Summary: PassSummary{StartedAt: time.Now()}}); err != nil {
		t.Fatalf("CommitPass failed: %v", err)
	}

	if err := s.CommitPass(Commit{
		ExpectedGeneration: 1,
		Removes:            []Entry{entry},
		Summary:            PassSummary{StartedAt: time.Now(), RemovedCount: 1},
	}); err != nil {
		t.Fatalf("CommitPass remove failed: %v", err)
	}

	entries, err := s.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected entry deleted, got %d", len(entries))
	}
	records, err := s.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected backing record deleted, got %d", len(records))
	}
}

func TestPurgeCorrupt(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	bad := testRecord("com.example.bad", "1.0", record.Unmodified, "")
	good := testRecord("com.example.good", "1.0", record.Unmodified, "")
	for _, r := range []record.AVR{bad, good} {
		if err := s.UpsertRecord(r); err != nil {
			t.Fatalf("UpsertRecord failed: %v", err)
		}
	}
	err := s.CommitPass(Commit{
		ExpectedGeneration: 0,
		Upserts: []Entry{
			{BundleID: bad.BundleID, VersionKey: VersionKey(bad), State: StateCorrupt},
			{BundleID: good.BundleID, VersionKey: VersionKey(good), State: StatePresent},
		},
		Summary: PassSummary{StartedAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("CommitPass failed: %v", err)
	}

	n, err := s.PurgeCorrupt("")
	if err != nil {
		t.Fatalf("PurgeCorrupt failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged entry, got %d", n)
	}

	entries, err := s.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].BundleID != "com.example.good" {
		t.Errorf("expected only the healthy entry to survive, got %+v", entries)
	}
	records, err := s.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 || records[0].BundleID != "com.example.good" {
		t.Errorf("expected corrupt record removed, got %+v", records)
	}
}

func TestLastPass(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	p, err := s.LastPass()
	if err != nil {
		t.Fatalf("LastPass failed: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil before any pass, got %+v", p)
	}

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	err = s.CommitPass(Commit{
		ExpectedGeneration: 0,
		Summary: PassSummary{
			StartedAt:        started,
			RecordsProcessed: 12,
			RecordsDropped:   2,
			DroppedBundleIDs: []string{"com.example.broken"},
		},
	})
	if err != nil {
		t.Fatalf("CommitPass failed: %v", err)
	}

	p, err = s.LastPass()
	if err != nil {
		t.Fatalf("LastPass failed: %v", err)
	}
	if p == nil {
		t.Fatal("expected a pass summary")
	}
	if p.RecordsProcessed != 12 || p.RecordsDropped != 2 {
		t.Errorf("summary mismatch: %+v", p)
	}
	if !p.StartedAt.Equal(started) {
		t.Errorf("expected StartedAt %v, got %v", started, p.StartedAt)
	}
	if len(p.DroppedBundleIDs) != 1 || p.DroppedBundleIDs[0] != "com.example.broken" {
		t.Errorf("dropped bundle ids mismatch: %v", p.DroppedBundleIDs)
	}
}

func TestVersionKeyRoundTrip(t *testing.T) {
	r := testRecord("com.example.app", "1.0", record.Tweaked, "uYouPlus")
	key := VersionKey(r)

	version, variant, tweakKey, ok := splitVersionKey(key)
	if !ok {
		t.Fatalf("splitVersionKey failed for %q", key)
	}
	if version != "1.0" || variant != "tweaked" || tweakKey != "uyouplus" {
		t.Errorf("round trip mismatch: %s %s %s", version, variant, tweakKey)
	}
}
