package tournament

import (
	"regexp"
	"strings"
)

var (
	thinkBlockPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)
	blankRunPattern   = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// CleanResponse post-processes a raw model response: reasoning traces wrapped
// in <think>...</think> are removed, runs of blank lines are collapsed to a
// single blank line and surrounding whitespace is trimmed.
func CleanResponse(raw string) string {
	text := thinkBlockPattern.ReplaceAllString(raw, "")
	text = CollapseBlankLines(text)
	return strings.TrimSpace(text)
}

// CollapseBlankLines replaces any run of two or more blank lines with exactly
// one blank line. Applying it twice gives the same result as applying it once.
func CollapseBlankLines(s string) string {
	return blankRunPattern.ReplaceAllString(s, "\n\n")
}
