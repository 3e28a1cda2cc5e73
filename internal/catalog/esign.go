package catalog

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/telos-labs/catalogd/internal/aggregate"
	"github.com/telos-labs/catalogd/internal/record"
)

// EsignCatalog is the grouped-by-kind document: each app's retained
// versions partitioned into a stock group and a tweaked group. Both groups
// appear even when one is empty so the client layout stays stable.
type EsignCatalog struct {
	Name         string     `json:"name"`
	Identifier   string     `json:"identifier"`
	TintColor    string     `json:"tintColor"`
	Features     []string   `json:"features"`
	TemporalInfo EsignStamp `json:"temporal_info"`
	Apps         []EsignApp `json:"apps"`
}

// EsignStamp records when this catalog revision was produced.
type EsignStamp struct {
	ReleaseDate string `json:"release_date"`
}

// EsignApp is one app with both variant groups.
type EsignApp struct {
	Name             string         `json:"name"`
	BundleIdentifier string         `json:"bundleIdentifier"`
	DeveloperName    string         `json:"developerName"`
	IconURL          string         `json:"iconURL"`
	Unmodified       []EsignVersion `json:"unmodified"`
	Tweaked          []EsignVersion `json:"tweaked"`
}

// EsignVersion is one published version within a group.
type EsignVersion struct {
	Version     string `json:"version"`
	TweakName   string `json:"tweakName,omitempty"`
	VersionDate string `json:"versionDate"`
	DownloadURL string `json:"downloadURL"`
	Size        int64  `json:"size"`
}

// BuildEsign synthesizes the grouped document. Group order follows the
// priority order within each group.
func BuildEsign(src Source, entries []aggregate.Entry, passStart time.Time, logger *zap.Logger) EsignCatalog {
	doc := EsignCatalog{
		Name:         src.Name,
		Identifier:   src.Identifier,
		TintColor:    src.Tint(),
		Features:     []string{"IPA signer", "Tweak injector"},
		TemporalInfo: EsignStamp{ReleaseDate: dateOf(passStart)},
		Apps:         []EsignApp{},
	}

	for _, entry := range entries {
		if len(entry.Retained) == 0 {
			logger.Warn("skipping entry with no retained versions",
				zap.String("bundle_id", entry.BundleID))
			continue
		}

		app := EsignApp{
			Name:             entry.Info.Name,
			BundleIdentifier: entry.BundleID,
			DeveloperName:    developerFor(entry, src),
			IconURL:          iconFor(entry),
			Unmodified:       []EsignVersion{},
			Tweaked:          []EsignVersion{},
		}

		displays := displayVersions(entry.Retained)
		for i, v := range entry.Retained {
			ev := EsignVersion{
				Version:     displays[i],
				VersionDate: dateOf(v.DiscoveredAt),
				DownloadURL: v.AssetRef,
				Size:        v.SizeBytes,
			}
			if v.Variant == record.Tweaked {
				ev.TweakName = v.TweakName
				app.Tweaked = append(app.Tweaked, ev)
			} else {
				app.Unmodified = append(app.Unmodified, ev)
			}
		}

		doc.Apps = append(doc.Apps, app)
	}

	sort.Slice(doc.Apps, func(i, j int) bool {
		return strings.ToLower(doc.Apps[i].Name) < strings.ToLower(doc.Apps[j].Name)
	})

	return doc
}
