// Package output provides terminal output utilities for catalogd.
//
// This package includes:
//   - Table rendering for aggregated apps, snapshot entries, and pass summaries
//   - Human-readable formatting for sizes and dates
//
// All table rendering functions use ASCII characters and ANSI color codes for
// terminal output.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/telos-labs/catalogd/internal/aggregate"
	"github.com/telos-labs/catalogd/internal/reconcile"
	"github.com/telos-labs/catalogd/internal/store"
)

// ANSI color codes for entry state display
const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorGray  = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderAppTable renders the aggregated apps with their retained versions.
// Entries arrive already sorted by bundle identifier.
func RenderAppTable(entries []aggregate.Entry) string {
	if len(entries) == 0 {
		return "No apps in catalog.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-20s %-28s %-10s %-12s %-8s %s\n",
		"App", "Bundle ID", "Top", "Variant", "Size", "Versions"))
	sb.WriteString(strings.Repeat("─", 92))
	sb.WriteString("\n")

	for _, e := range entries {
		top := e.Top()
		variant := string(top.Variant)
		if top.TweakName != "" {
			variant = top.TweakName
		}

		sb.WriteString(fmt.Sprintf("%-20s %-28s %-10s %-12s %-8s %d of %d\n",
			truncate(e.Info.Name, 20),
			truncate(e.BundleID, 28),
			truncate(top.Version, 10),
			truncate(variant, 12),
			formatSize(top.SizeBytes),
			len(e.Retained),
			len(e.Versions)))
	}

	return sb.String()
}

// RenderEntryTable renders the persisted snapshot entries with their
// lifecycle state.
func RenderEntryTable(entries []store.Entry) string {
	if len(entries) == 0 {
		return "Snapshot is empty.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-28s %-34s %-9s %s\n",
		"Bundle ID", "Version Key", "State", "Updated"))
	sb.WriteString(strings.Repeat("─", 88))
	sb.WriteString("\n")

	for _, e := range entries {
		state := string(e.State)
		switch e.State {
		case store.StatePresent:
			state = colorize(colorGreen, state)
		case store.StateCorrupt:
			state = colorize(colorRed, state)
		}

		sb.WriteString(fmt.Sprintf("%-28s %-34s %-9s %s\n",
			truncate(e.BundleID, 28),
			truncate(e.VersionKey, 34),
			state,
			formatRelativeTime(e.UpdatedAt)))
	}

	return sb.String()
}

// RenderPassSummary renders the outcome of the most recent pass.
func RenderPassSummary(p *store.PassSummary) string {
	if p == nil {
		return "No pass has committed yet.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Last pass:   %s (took %s)\n",
		formatRelativeTime(p.CommittedAt),
		p.CommittedAt.Sub(p.StartedAt).Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("Processed:   %d records\n", p.RecordsProcessed))
	sb.WriteString(fmt.Sprintf("Dropped:     %d records\n", p.RecordsDropped))
	sb.WriteString(fmt.Sprintf("Corrupt:     %d entries\n", p.CorruptCount))
	sb.WriteString(fmt.Sprintf("Removed:     %d entries\n", p.RemovedCount))

	if len(p.DroppedBundleIDs) > 0 {
		sb.WriteString("Offenders:   " + strings.Join(p.DroppedBundleIDs, ", ") + "\n")
	}

	return sb.String()
}

// RenderCorrections renders the correction set a pass handed back to the
// operator.
func RenderCorrections(c reconcile.Corrections) string {
	if len(c.Repair) == 0 && len(c.Remove) == 0 {
		return ""
	}

	var sb strings.Builder

	if len(c.Repair) > 0 {
		sb.WriteString("Needs republished assets:\n")
		for _, id := range c.Repair {
			sb.WriteString("  " + colorize(colorRed, id) + "\n")
		}
	}
	if len(c.Remove) > 0 {
		sb.WriteString("Removed from snapshot:\n")
		for _, key := range c.Remove {
			sb.WriteString(fmt.Sprintf("  %s %s\n", key.BundleID, colorize(colorGray, key.VersionKey)))
		}
	}

	return sb.String()
}

// formatSize converts bytes to human-readable size (GB, MB, KB).
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.0f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.0f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case diff < 30*24*time.Hour:
		weeks := int(diff.Hours() / 24 / 7)
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	case diff < 365*24*time.Hour:
		months := int(diff.Hours() / 24 / 30)
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	default:
		years := int(diff.Hours() / 24 / 365)
		if years == 1 {
			return "1 year ago"
		}
		return fmt.Sprintf("%d years ago", years)
	}
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
