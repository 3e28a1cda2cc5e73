package catalog

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/telos-labs/catalogd/internal/aggregate"
)

// FeatherRepo is the second multi-version document. It carries the same
// information as the AltStore document but under Feather's own field names
// and nesting, and is produced by its own builder so a schema change for
// one client never risks the other.
type FeatherRepo struct {
	MetaData FeatherMeta  `json:"metaData"`
	Apps     []FeatherApp `json:"apps"`
	News     []NewsEntry  `json:"news"`
}

// FeatherMeta nests the repository identity.
type FeatherMeta struct {
	RepoName        string `json:"repoName"`
	RepoID          string `json:"repoID"`
	RepoSubtitle    string `json:"repoSubtitle"`
	RepoDescription string `json:"repoDescription"`
	RepoIcon        string `json:"repoIcon"`
	RepoHeader      string `json:"repoHeader"`
	RepoWebsite     string `json:"repoWebsite"`
	Accent          string `json:"accent"`
}

// FeatherApp is one app entry with its release history.
type FeatherApp struct {
	AppName     string           `json:"appName"`
	AppID       string           `json:"appID"`
	Developer   string           `json:"developer"`
	Caption     string           `json:"caption"`
	About       string           `json:"about"`
	Icon        string           `json:"icon"`
	Screenshots []string         `json:"screenshots"`
	Releases    []FeatherRelease `json:"releases"`
}

// FeatherRelease is one retained version, priority order preserved.
type FeatherRelease struct {
	Release   string `json:"release"`
	Published string `json:"published"`
	Notes     string `json:"notes"`
	Download  string `json:"download"`
	SizeBytes int64  `json:"sizeBytes"`
}

// BuildFeather synthesizes the Feather document from the same entry set as
// the AltStore one, mapped into Feather's schema.
func BuildFeather(src Source, entries []aggregate.Entry, logger *zap.Logger) FeatherRepo {
	doc := FeatherRepo{
		MetaData: FeatherMeta{
			RepoName:        src.Name,
			RepoID:          src.Identifier,
			RepoSubtitle:    src.Subtitle,
			RepoDescription: src.Description,
			RepoIcon:        src.IconURL,
			RepoHeader:      src.HeaderURL,
			RepoWebsite:     src.Website,
			Accent:          src.Tint(),
		},
		Apps: []FeatherApp{},
	}

	for _, entry := range entries {
		if len(entry.Retained) == 0 {
			logger.Warn("skipping entry with no retained versions",
				zap.String("bundle_id", entry.BundleID))
			continue
		}

		displays := displayVersions(entry.Retained)
		releases := make([]FeatherRelease, len(entry.Retained))
		for i, v := range entry.Retained {
			releases[i] = FeatherRelease{
				Release:   displays[i],
				Published: dateOf(v.DiscoveredAt),
				Notes:     versionDescription(displays[i], v),
				Download:  v.AssetRef,
				SizeBytes: v.SizeBytes,
			}
		}

		about := CleanDescription(entry.Info.Description, tweakNames(entry))
		if about == "" {
			about = entry.Info.Name + " for iOS"
		}

		screenshots := entry.Info.Screenshots
		if screenshots == nil {
			screenshots = entry.Top().Screenshots
		}
		if screenshots == nil {
			screenshots = []string{}
		}

		doc.Apps = append(doc.Apps, FeatherApp{
			AppName:     entry.Info.Name,
			AppID:       entry.BundleID,
			Developer:   developerFor(entry, src),
			Caption:     subtitleFor(entry),
			About:       about,
			Icon:        iconFor(entry),
			Screenshots: screenshots,
			Releases:    releases,
		})
	}

	sort.Slice(doc.Apps, func(i, j int) bool {
		return strings.ToLower(doc.Apps[i].AppName) < strings.ToLower(doc.Apps[j].AppName)
	})

	doc.News = buildNews(src, entries)
	return doc
}
