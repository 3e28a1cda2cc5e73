package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/telos-labs/catalogd/internal/aggregate"
	"github.com/telos-labs/catalogd/internal/record"
)

// News tint colors alternate between entries.
var newsTints = []string{"#00BFA6", "#FFD700"}

// NewsEntry is one update announcement in the multi-version feeds.
type NewsEntry struct {
	Title      string `json:"title"`
	Identifier string `json:"identifier"`
	Caption    string `json:"caption"`
	Date       string `json:"date"`
	TintColor  string `json:"tintColor"`
	Notify     bool   `json:"notify"`
	AppID      string `json:"appID"`
	URL        string `json:"url,omitempty"`
}

// buildNews derives the announcement feed from the retained versions,
// grouped by discovery date, newest date first, capped at src.MaxNews.
// Entries within a date list apps alphabetically so output is stable.
func buildNews(src Source, entries []aggregate.Entry) []NewsEntry {
	type item struct {
		appName  string
		bundleID string
		line     string
	}

	byDate := make(map[string][]item)
	for _, entry := range entries {
		for _, v := range entry.Retained {
			line := fmt.Sprintf("%s - %s", entry.Info.Name, v.Version)
			if v.Variant == record.Tweaked {
				line = fmt.Sprintf("%s - (%s) %s", entry.Info.Name, v.TweakName, v.Version)
			}
			date := dateOf(v.DiscoveredAt)
			byDate[date] = append(byDate[date], item{
				appName:  entry.Info.Name,
				bundleID: entry.BundleID,
				line:     line,
			})
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	max := src.MaxNews
	if max <= 0 {
		max = defaultMaxNews
	}
	if len(dates) > max {
		dates = dates[:max]
	}

	title := src.NewsTitle
	if title == "" {
		title = "Update"
	}

	news := make([]NewsEntry, 0, len(dates))
	for i, date := range dates {
		items := byDate[date]
		sort.Slice(items, func(a, b int) bool {
			if items[a].appName != items[b].appName {
				return items[a].appName < items[b].appName
			}
			return items[a].line < items[b].line
		})

		caption := "New Files Uploaded:"
		for _, it := range items {
			caption += "\n" + it.line
		}

		news = append(news, NewsEntry{
			Title:      fmt.Sprintf("%s %s", title, shortDate(date)),
			Identifier: fmt.Sprintf("%s-update-%s", src.Identifier, date),
			Caption:    caption,
			Date:       date,
			TintColor:  newsTints[i%len(newsTints)],
			Notify:     true,
			AppID:      items[0].bundleID,
			URL:        src.NewsURL,
		})
	}

	return news
}

// shortDate turns "2026-03-14" into "3.14" for the entry title.
func shortDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%d.%d", int(t.Month()), t.Day())
}
