package catalog

import (
	"regexp"
	"strings"
)

// Store, donation, and tracker links get stripped from upstream
// descriptions before they reach installer clients.
var linkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://apps\.apple\.com/[^\s\)]+`),
	regexp.MustCompile(`(?i)https?://itunes\.apple\.com/[^\s\)]+`),
	regexp.MustCompile(`(?i)https?://\S*?donate[^\s\)]*`),
	regexp.MustCompile(`(?i)https?://\S*?paypal[^\s\)]*`),
	regexp.MustCompile(`(?i)https?://\S*?patreon[^\s\)]*`),
	regexp.MustCompile(`(?i)https?://\S*?ko-fi[^\s\)]*`),
	regexp.MustCompile(`(?i)https?://\S*?github\.com/[^\s\)]+`),
	regexp.MustCompile(`(?i)https?://\S*?bit\.ly/[^\s\)]+`),
	regexp.MustCompile(`(?i)https?://\S*?t\.me/[^\s\)]+`),
	regexp.MustCompile(`(?i)https?://\S*?discord[^\s\)]*`),
}

var (
	mdLink      = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	runsOfSpace = regexp.MustCompile(`[ \t]+`)
	runsOfBlank = regexp.MustCompile(`\n{3,}`)
)

// CleanDescription strips markdown emphasis and unwanted links from an
// upstream description, collapses whitespace, and appends the injected
// tweak list when present. At most five tweaks are named.
func CleanDescription(text string, tweaks []string) string {
	text = strings.NewReplacer("**", "", "__", "", "`", "").Replace(text)
	text = mdLink.ReplaceAllString(text, "$1")

	for _, pattern := range linkPatterns {
		text = pattern.ReplaceAllString(text, "")
	}

	text = runsOfSpace.ReplaceAllString(text, " ")
	text = runsOfBlank.ReplaceAllString(text, "\n\n")
	result := strings.TrimSpace(text)

	if len(tweaks) > 0 {
		if len(tweaks) > 5 {
			tweaks = tweaks[:5]
		}
		suffix := "Tweaks Injected: " + strings.Join(tweaks, ", ")
		if result != "" {
			result += "\n\n" + suffix
		} else {
			result = suffix
		}
	}

	return result
}
