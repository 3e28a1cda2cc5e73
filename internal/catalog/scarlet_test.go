package catalog

import (
	"testing"
	"time"

	"github.com/telos-labs/catalogd/internal/aggregate"
	"github.com/telos-labs/catalogd/internal/priority"
	"github.com/telos-labs/catalogd/internal/record"
)

func TestBuildScarlet_SingleVersionInvariant(t *testing.T) {
	entries := testEntries(t, nil, aggregate.Policy{},
		testAVR("com.example.video", "1.2", record.Tweaked, "uYouPlus", time.Hour),
		testAVR("com.example.video", "1.1", record.Tweaked, "uYouPlus", 24*time.Hour),
		testAVR("com.example.video", "1.0", record.Unmodified, "", 48*time.Hour),
	)

	doc := BuildScarlet(testSource, entries, passStart, nopLogger())
	if len(doc.Apps) != 1 {
		t.Fatalf("expected 1 app, got %d", len(doc.Apps))
	}

	top := entries[0].Top()
	app := doc.Apps[0]
	if app.Version != top.Version || app.DownloadURL != top.AssetRef {
		t.Errorf("emitted version must equal Retained[0]: got %s / %s, want %s / %s",
			app.Version, app.DownloadURL, top.Version, top.AssetRef)
	}
}

func TestBuildScarlet_DefaultExampleEmitsTweaked(t *testing.T) {
	// No override: the tweaked build discovered later wins the top slot.
	entries := testEntries(t, nil, aggregate.Policy{},
		testAVR("com.example.video", "1.0", record.Unmodified, "", 48*time.Hour),
		testAVR("com.example.video", "1.0", record.Tweaked, "X", time.Hour),
	)

	doc := BuildScarlet(testSource, entries, passStart, nopLogger())
	if doc.Apps[0].VersionDescription != "Version: 1.0\nTweaks: X" {
		t.Errorf("expected the tweaked build emitted, got %q", doc.Apps[0].VersionDescription)
	}
}

func TestBuildScarlet_OverrideExampleEmitsStock(t *testing.T) {
	entries := testEntries(t,
		priority.Overrides{"com.example.video": {"unmodified", "x"}},
		aggregate.Policy{},
		testAVR("com.example.video", "1.0", record.Unmodified, "", 48*time.Hour),
		testAVR("com.example.video", "1.0", record.Tweaked, "X", time.Hour),
	)

	doc := BuildScarlet(testSource, entries, passStart, nopLogger())
	if doc.Apps[0].VersionDescription != "Version 1.0" {
		t.Errorf("expected the stock build emitted under override, got %q", doc.Apps[0].VersionDescription)
	}
}

func TestBuildScarlet_AccentColor(t *testing.T) {
	src := testSource
	src.TintColor = "FF8000"

	doc := BuildScarlet(src, nil, passStart, nopLogger())
	if doc.AccentColor.Red != 1.0 {
		t.Errorf("expected red component 1.0, got %v", doc.AccentColor.Red)
	}
	if doc.AccentColor.Blue != 0 {
		t.Errorf("expected blue component 0, got %v", doc.AccentColor.Blue)
	}
}

func TestBuildScarlet_VersionDateFromPassStart(t *testing.T) {
	doc := BuildScarlet(testSource, nil, passStart, nopLogger())
	if doc.VersionDate != "2026-04-01" {
		t.Errorf("expected pass-start date, got %s", doc.VersionDate)
	}
}
