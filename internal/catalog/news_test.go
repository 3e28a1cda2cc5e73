package catalog

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/telos-labs/catalogd/internal/aggregate"
	"github.com/telos-labs/catalogd/internal/record"
)

func TestBuildNews_GroupedByDateNewestFirst(t *testing.T) {
	entries := testEntries(t, nil, aggregate.Policy{},
		testAVR("com.example.video", "1.1", record.Unmodified, "", 2*time.Hour),
		testAVR("com.example.video", "1.0", record.Unmodified, "", 50*time.Hour),
		testAVR("com.example.chat", "2.0", record.Tweaked, "Rocket", 3*time.Hour),
	)

	news := buildNews(testSource, entries)
	if len(news) != 2 {
		t.Fatalf("expected 2 dated entries, got %d", len(news))
	}
	if news[0].Date < news[1].Date {
		t.Errorf("expected newest date first, got %s then %s", news[0].Date, news[1].Date)
	}
}

func TestBuildNews_CaptionListsAppsWithTweaks(t *testing.T) {
	entries := testEntries(t, nil, aggregate.Policy{},
		testAVR("com.example.video", "1.1", record.Unmodified, "", time.Hour),
		testAVR("com.example.chat", "2.0", record.Tweaked, "Rocket", time.Hour),
	)

	news := buildNews(testSource, entries)
	if len(news) != 1 {
		t.Fatalf("expected single dated entry, got %d", len(news))
	}
	caption := news[0].Caption
	if !strings.Contains(caption, "ChatApp - (Rocket) 2.0") {
		t.Errorf("expected tweaked line in caption, got %q", caption)
	}
	if !strings.Contains(caption, "VideoApp - 1.1") {
		t.Errorf("expected stock line in caption, got %q", caption)
	}
}

func TestBuildNews_CapAndAlternatingTints(t *testing.T) {
	var records []record.AVR
	for day := 1; day <= 15; day++ {
		records = append(records,
			testAVR("com.example.video", fmt.Sprintf("1.%d", day), record.Unmodified, "", time.Duration(day)*24*time.Hour))
	}
	entries := testEntries(t, nil, aggregate.Policy{}, records...)

	src := testSource
	src.MaxNews = 4
	news := buildNews(src, entries)
	if len(news) != 4 {
		t.Fatalf("expected news capped at 4, got %d", len(news))
	}
	if news[0].TintColor == news[1].TintColor {
		t.Errorf("expected alternating tints, got %s twice", news[0].TintColor)
	}
	if news[0].TintColor != news[2].TintColor {
		t.Errorf("expected tint cycle of two, got %s vs %s", news[0].TintColor, news[2].TintColor)
	}
}

func TestBuildNews_IdentifierAndTitle(t *testing.T) {
	entries := testEntries(t, nil, aggregate.Policy{},
		testAVR("com.example.video", "1.0", record.Unmodified, "", time.Hour),
	)

	src := testSource
	src.NewsTitle = "TELOS Update"
	news := buildNews(src, entries)
	if !strings.HasPrefix(news[0].Identifier, "com.telos.library-update-") {
		t.Errorf("expected source-scoped identifier, got %q", news[0].Identifier)
	}
	if !strings.HasPrefix(news[0].Title, "TELOS Update ") {
		t.Errorf("expected configured title prefix, got %q", news[0].Title)
	}
	// 2026-04-01 renders as "4.1".
	if !strings.HasSuffix(news[0].Title, "4.1") {
		t.Errorf("expected short date suffix, got %q", news[0].Title)
	}
}
