package speech

import (
	"regexp"
	"strings"
)

// Markdown and emoji patterns stripped before synthesis. Engines read the
// text verbatim, so formatting characters end up spoken unless removed.
var (
	codeFencePattern = regexp.MustCompile("(?m)^```[a-zA-Z0-9+-]*[ \t]*$")
	imagePattern     = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkPattern      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headingPattern   = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	quotePattern     = regexp.MustCompile(`(?m)^>[ \t]?`)
	bulletPattern    = regexp.MustCompile(`(?m)^[ \t]*[-+][ \t]+`)
	emphasisPattern  = regexp.MustCompile("[*_~`]")
	emojiPattern     = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{FE00}-\x{FE0F}\x{200D}\x{2B00}-\x{2BFF}]`)
	controlPattern   = regexp.MustCompile(`[\x00-\x1F\x7F]`)
	spacePattern     = regexp.MustCompile(`\s+`)
	punctOnlyPattern = regexp.MustCompile(`^[.,!?;:\s]+$`)
)

// Sanitize strips markdown formatting, emoji, and control characters so the
// engines receive plain speakable words. Returns the empty string when
// nothing speakable remains.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}

	cleaned := text
	cleaned = codeFencePattern.ReplaceAllString(cleaned, "")
	cleaned = imagePattern.ReplaceAllString(cleaned, "$1")
	cleaned = linkPattern.ReplaceAllString(cleaned, "$1")
	cleaned = headingPattern.ReplaceAllString(cleaned, "")
	cleaned = quotePattern.ReplaceAllString(cleaned, "")
	cleaned = bulletPattern.ReplaceAllString(cleaned, "")
	cleaned = emphasisPattern.ReplaceAllString(cleaned, "")
	cleaned = emojiPattern.ReplaceAllString(cleaned, "")

	// Control characters become spaces so adjacent words do not merge
	cleaned = controlPattern.ReplaceAllString(cleaned, " ")
	cleaned = spacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if punctOnlyPattern.MatchString(cleaned) {
		return ""
	}
	return cleaned
}

// Speakable reports whether the text still has content after sanitizing.
func Speakable(text string) bool {
	return Sanitize(text) != ""
}
