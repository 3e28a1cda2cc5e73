package catalog

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/telos-labs/catalogd/internal/aggregate"
)

// AltStoreSource is the multi-version catalog document. Consumer clients
// present the full retained version list and let the user pick.
type AltStoreSource struct {
	Name         string        `json:"name"`
	Identifier   string        `json:"identifier"`
	Subtitle     string        `json:"subtitle"`
	Description  string        `json:"description"`
	IconURL      string        `json:"iconURL"`
	HeaderURL    string        `json:"headerURL"`
	Website      string        `json:"website"`
	TintColor    string        `json:"tintColor"`
	FeaturedApps []string      `json:"featuredApps"`
	Apps         []AltStoreApp `json:"apps"`
	News         []NewsEntry   `json:"news"`
}

// AltStoreApp is one app entry with its retained version history.
type AltStoreApp struct {
	Beta                 bool               `json:"beta"`
	Name                 string             `json:"name"`
	BundleIdentifier     string             `json:"bundleIdentifier"`
	DeveloperName        string             `json:"developerName"`
	Subtitle             string             `json:"subtitle"`
	Version              string             `json:"version"`
	VersionDate          string             `json:"versionDate"`
	VersionDescription   string             `json:"versionDescription"`
	DownloadURL          string             `json:"downloadURL"`
	LocalizedDescription string             `json:"localizedDescription"`
	IconURL              string             `json:"iconURL"`
	TintColor            string             `json:"tintColor"`
	Size                 int64              `json:"size"`
	Screenshots          []string           `json:"screenshots"`
	AppPermissions       AltStorePermission `json:"appPermissions"`
	Versions             []AltStoreVersion  `json:"versions"`
}

// AltStorePermission lists the entitlements carried by the top version.
type AltStorePermission struct {
	Entitlements []string `json:"entitlements"`
}

// AltStoreVersion is one retained version, priority order preserved.
type AltStoreVersion struct {
	Version              string `json:"version"`
	Date                 string `json:"date"`
	LocalizedDescription string `json:"localizedDescription"`
	DownloadURL          string `json:"downloadURL"`
	Size                 int64  `json:"size"`
}

// BuildAltStore synthesizes the multi-version document. Entries with an
// empty retained set are logged and skipped; they never abort the document.
func BuildAltStore(src Source, entries []aggregate.Entry, logger *zap.Logger) AltStoreSource {
	doc := AltStoreSource{
		Name:         src.Name,
		Identifier:   src.Identifier,
		Subtitle:     src.Subtitle,
		Description:  src.Description,
		IconURL:      src.IconURL,
		HeaderURL:    src.HeaderURL,
		Website:      src.Website,
		TintColor:    src.Tint(),
		FeaturedApps: []string{},
		Apps:         []AltStoreApp{},
	}

	for _, entry := range entries {
		if len(entry.Retained) == 0 {
			logger.Warn("skipping entry with no retained versions",
				zap.String("bundle_id", entry.BundleID))
			continue
		}
		doc.Apps = append(doc.Apps, altStoreApp(src, entry))
	}

	sort.Slice(doc.Apps, func(i, j int) bool {
		return strings.ToLower(doc.Apps[i].Name) < strings.ToLower(doc.Apps[j].Name)
	})

	featured := src.MaxFeatured
	if featured <= 0 {
		featured = defaultFeatured
	}
	for i, app := range doc.Apps {
		if i >= featured {
			break
		}
		doc.FeaturedApps = append(doc.FeaturedApps, app.BundleIdentifier)
	}

	doc.News = buildNews(src, entries)
	return doc
}

func altStoreApp(src Source, entry aggregate.Entry) AltStoreApp {
	top := entry.Top()
	displays := displayVersions(entry.Retained)

	versions := make([]AltStoreVersion, len(entry.Retained))
	for i, v := range entry.Retained {
		versions[i] = AltStoreVersion{
			Version:              displays[i],
			Date:                 dateOf(v.DiscoveredAt),
			LocalizedDescription: versionDescription(displays[i], v),
			DownloadURL:          v.AssetRef,
			Size:                 v.SizeBytes,
		}
	}

	description := CleanDescription(entry.Info.Description, tweakNames(entry))
	if description == "" {
		description = entry.Info.Name + " for iOS"
	}

	screenshots := entry.Info.Screenshots
	if screenshots == nil {
		screenshots = top.Screenshots
	}
	if screenshots == nil {
		screenshots = []string{}
	}

	entitlements := top.Entitlements
	if entitlements == nil {
		entitlements = []string{}
	}

	return AltStoreApp{
		Name:                 entry.Info.Name,
		BundleIdentifier:     entry.BundleID,
		DeveloperName:        developerFor(entry, src),
		Subtitle:             subtitleFor(entry),
		Version:              top.Version,
		VersionDate:          dateOf(top.DiscoveredAt),
		VersionDescription:   versionDescription(top.Version, top),
		DownloadURL:          top.AssetRef,
		LocalizedDescription: description,
		IconURL:              iconFor(entry),
		TintColor:            src.Tint(),
		Size:                 top.SizeBytes,
		Screenshots:          screenshots,
		AppPermissions:       AltStorePermission{Entitlements: entitlements},
		Versions:             versions,
	}
}
