package catalog

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/telos-labs/catalogd/internal/aggregate"
)

// ScarletSource is the single-version catalog document: exactly one
// version per app, the top of the priority order. Apps with nothing
// retained are simply absent, never an error.
type ScarletSource struct {
	Name        string                   `json:"name"`
	Identifier  string                   `json:"identifier"`
	Subtitle    string                   `json:"subtitle"`
	Description string                   `json:"description"`
	Version     string                   `json:"version"`
	VersionDate string                   `json:"versionDate"`
	AccentColor ScarletAccent            `json:"accentColor"`
	IconURL     string                   `json:"iconURL"`
	Localized   map[string]ScarletLocale `json:"localized"`
	Apps        []ScarletApp             `json:"apps"`
}

// ScarletAccent is the tint color as 0..1 RGB components.
type ScarletAccent struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
}

// ScarletLocale carries the localized source strings.
type ScarletLocale struct {
	Name        string `json:"name"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
}

// ScarletApp is one app with its single published version.
type ScarletApp struct {
	Name                 string            `json:"name"`
	BundleIdentifier     string            `json:"bundleIdentifier"`
	DeveloperName        string            `json:"developerName"`
	LocalizedDescription string            `json:"localizedDescription"`
	Version              string            `json:"version"`
	VersionDate          string            `json:"versionDate"`
	VersionDescription   string            `json:"versionDescription"`
	Size                 int64             `json:"size"`
	IconURL              string            `json:"iconURL"`
	DownloadURL          string            `json:"downloadURL"`
	MinOSVersion         string            `json:"minOSVersion"`
	SupportedPlatforms   []string          `json:"supportedPlatforms"`
	Metadata             map[string]string `json:"metadata"`
}

// BuildScarlet synthesizes the single-version document. The published
// version for each app is exactly the most-preferred retained version.
func BuildScarlet(src Source, entries []aggregate.Entry, passStart time.Time, logger *zap.Logger) ScarletSource {
	r, g, b := src.TintRGB()
	doc := ScarletSource{
		Name:        src.Name,
		Identifier:  src.Identifier,
		Subtitle:    src.Subtitle,
		Description: src.Description,
		Version:     "1.0.0",
		VersionDate: dateOf(passStart),
		AccentColor: ScarletAccent{Red: r, Green: g, Blue: b},
		IconURL:     src.IconURL,
		Localized: map[string]ScarletLocale{
			"default": {
				Name:        src.Name,
				Subtitle:    src.Subtitle,
				Description: src.Description,
			},
		},
		Apps: []ScarletApp{},
	}

	for _, entry := range entries {
		if len(entry.Retained) == 0 {
			logger.Warn("skipping entry with no retained versions",
				zap.String("bundle_id", entry.BundleID))
			continue
		}

		top := entry.Top()
		description := CleanDescription(entry.Info.Description, tweakNames(entry))
		if description == "" {
			description = entry.Info.Name + " for iOS"
		}

		doc.Apps = append(doc.Apps, ScarletApp{
			Name:                 entry.Info.Name,
			BundleIdentifier:     entry.BundleID,
			DeveloperName:        developerFor(entry, src),
			LocalizedDescription: description,
			Version:              top.Version,
			VersionDate:          dateOf(top.DiscoveredAt),
			VersionDescription:   versionDescription(top.Version, top),
			Size:                 top.SizeBytes,
			IconURL:              iconFor(entry),
			DownloadURL:          top.AssetRef,
			MinOSVersion:         top.MinOS,
			SupportedPlatforms:   []string{"iOS"},
			Metadata: map[string]string{
				"sourceType": "channel",
			},
		})
	}

	sort.Slice(doc.Apps, func(i, j int) bool {
		return strings.ToLower(doc.Apps[i].Name) < strings.ToLower(doc.Apps[j].Name)
	})

	return doc
}
