package tts

import (
	"regexp"
	"strings"
)

type rewrite struct {
	re   *regexp.Regexp
	with string
}

// Order matters: fences go before inline code, images before links, table
// separators before rules.
var markdownRewrites = []rewrite{
	{regexp.MustCompile("(?s)```.*?```"), ""},
	{regexp.MustCompile("`([^`\n]+)`"), "$1"},
	{regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`), ""},
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`), ""},
	{regexp.MustCompile(`\*\*([^*]+)\*\*`), "$1"},
	{regexp.MustCompile(`__([^_]+)__`), "$1"},
	{regexp.MustCompile(`\*([^*\n]+)\*`), "$1"},
	{regexp.MustCompile(`(^|[^\w])_([^_\n]+)_([^\w]|$)`), "$1$2$3"},
	{regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*\|?[ \t]*:?-{3,}:?[ \t]*(\|[ \t]*:?-{3,}:?[ \t]*)*\|?[ \t]*$`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`), ""},
	{regexp.MustCompile(`[ \t]*\|[ \t]*`), " "},
	{regexp.MustCompile(`(?m)^[ \t]+|[ \t]+$`), ""},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// StripMarkdown turns a markdown reply into prose suitable for speech.
func StripMarkdown(text string) string {
	out := strings.ReplaceAll(text, "\r\n", "\n")
	for _, r := range markdownRewrites {
		out = r.re.ReplaceAllString(out, r.with)
	}
	return strings.TrimSpace(out)
}
