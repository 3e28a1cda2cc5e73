// Package catalog synthesizes installer-client catalog documents from the
// aggregated entry set. Each target format has its own document types and
// its own builder; builders are pure over their inputs and safe to run
// concurrently since they share no mutable state.
package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/telos-labs/catalogd/internal/aggregate"
	"github.com/telos-labs/catalogd/internal/record"
)

// Source is the repository identity stamped into every document. It comes
// from operator configuration, threaded in explicitly so synthesis stays a
// pure function of its arguments.
type Source struct {
	Name          string
	Identifier    string
	Subtitle      string
	Description   string
	DeveloperName string
	IconURL       string
	HeaderURL     string
	Website       string
	TintColor     string // hex, with or without leading #
	NewsURL       string
	NewsTitle     string // title prefix for news entries
	MaxNews       int
	MaxFeatured   int
}

const (
	defaultTint     = "5865F2"
	defaultMaxNews  = 10
	defaultFeatured = 5
)

// Tint returns the source tint color normalized to "#RRGGBB".
func (s Source) Tint() string {
	tint := strings.TrimPrefix(strings.TrimSpace(s.TintColor), "#")
	if tint == "" {
		tint = defaultTint
	}
	return "#" + tint
}

// TintRGB decomposes the tint into 0..1 float components for clients that
// want an accent color triple. Falls back to a neutral blue on bad hex.
func (s Source) TintRGB() (r, g, b float64) {
	tint := strings.TrimPrefix(s.Tint(), "#")
	if len(tint) != 6 {
		return 0.35, 0.4, 0.95
	}
	parse := func(h string) (float64, bool) {
		n, err := strconv.ParseUint(h, 16, 16)
		if err != nil {
			return 0, false
		}
		return round2(float64(n) / 255.0), true
	}
	var ok bool
	if r, ok = parse(tint[0:2]); !ok {
		return 0.35, 0.4, 0.95
	}
	if g, ok = parse(tint[2:4]); !ok {
		return 0.35, 0.4, 0.95
	}
	if b, ok = parse(tint[4:6]); !ok {
		return 0.35, 0.4, 0.95
	}
	return r, g, b
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// dateOf renders a discovery timestamp as the catalog date field.
func dateOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// displayVersions disambiguates repeated version strings within one app by
// suffixing "b", "c", ... to the second and later occurrences. Only the
// display field changes; the underlying record is untouched.
func displayVersions(versions []record.AVR) []string {
	counts := make(map[string]int, len(versions))
	out := make([]string, len(versions))
	for i, v := range versions {
		n := counts[v.Version]
		counts[v.Version] = n + 1
		if n == 0 {
			out[i] = v.Version
		} else {
			out[i] = fmt.Sprintf("%s%c", v.Version, 'a'+rune(n))
		}
	}
	return out
}

// versionDescription summarizes one version for a client changelog field.
func versionDescription(display string, v record.AVR) string {
	if v.Variant == record.Tweaked {
		return fmt.Sprintf("Version: %s\nTweaks: %s", display, v.TweakName)
	}
	return "Version " + display
}

// subtitleFor picks the app subtitle: lookup-provided, else derived from
// the top version's tweak, else a generic line.
func subtitleFor(entry aggregate.Entry) string {
	if entry.Info.Subtitle != "" {
		return entry.Info.Subtitle
	}
	top := entry.Top()
	if top.Variant == record.Tweaked {
		return "Tweaked with " + top.TweakName
	}
	return entry.Info.Name + " for iOS"
}

// developerFor picks the per-app developer name with the source's default.
func developerFor(entry aggregate.Entry, src Source) string {
	if entry.Info.Developer != "" {
		return entry.Info.Developer
	}
	return src.DeveloperName
}

// iconFor prefers the lookup icon over the archive-extracted one.
func iconFor(entry aggregate.Entry) string {
	if entry.Info.IconURL != "" {
		return entry.Info.IconURL
	}
	return entry.Top().IconRef
}

// tweakNames collects the distinct display tweak names across the retained
// versions, most-preferred first.
func tweakNames(entry aggregate.Entry) []string {
	seen := make(map[string]bool)
	var names []string
	for _, v := range entry.Retained {
		if v.Variant != record.Tweaked {
			continue
		}
		key := record.CanonicalTweak(v.TweakName)
		if !seen[key] {
			seen[key] = true
			names = append(names, v.TweakName)
		}
	}
	return names
}
