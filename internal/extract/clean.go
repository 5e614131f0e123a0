package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

const (
	maxTitleRunes = 500

	// DefaultMaxContentRunes caps stored announcement bodies.
	DefaultMaxContentRunes = 50000
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	spaceRuns    = regexp.MustCompile(`[ \t]+`)
	blankRuns    = regexp.MustCompile(`\n\s*\n`)

	dateReplacer = strings.NewReplacer("年", "-", "月", "-", "日", "", ".", "-", "/", "-")
)

// Fold converts full-width characters to their half-width forms. Portal
// pages mix ＡＳＣＩＩ and ASCII freely; everything downstream assumes
// the narrow forms.
func Fold(s string) string {
	return width.Narrow.String(s)
}

// CleanTitle normalizes an announcement title: width folding, whitespace
// collapse, control-character strip, length cap.
func CleanTitle(title string) string {
	title = Fold(title)
	title = controlChars.ReplaceAllString(title, "")
	title = strings.Join(strings.Fields(title), " ")
	if r := []rune(title); len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes]) + "..."
	}
	return title
}

// CleanURL trims a URL and fixes the portal's protocol-relative links.
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		raw = "http:" + raw
	}
	return raw
}

// CleanContent collapses runs of blank lines and spaces and caps the body
// at maxRunes (0 means DefaultMaxContentRunes). Truncation is marked so
// the cap is visible in stored rows.
func CleanContent(content string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxContentRunes
	}
	content = blankRuns.ReplaceAllString(content, "\n\n")
	content = spaceRuns.ReplaceAllString(content, " ")
	content = strings.TrimSpace(content)
	if r := []rune(content); len(r) > maxRunes {
		content = string(r[:maxRunes]) + "\n...(内容过长，已截断)"
	}
	return content
}

// CleanDate normalizes the portal's date spellings (2026年08月20日,
// 2026.08.20, 2026/08/20) to dash-separated form.
func CleanDate(date string) string {
	date = strings.TrimSpace(Fold(date))
	return strings.TrimSpace(dateReplacer.Replace(date))
}
