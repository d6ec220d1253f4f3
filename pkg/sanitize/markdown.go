// Package sanitize turns model output into text that reads naturally when
// spoken aloud.
package sanitize

import (
	"regexp"
	"strings"
)

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Rules are applied in order. Emphasis goes first so that a line such as
// "* **Note**" loses both the bold markers and the bullet.
var rules = []rule{
	{regexp.MustCompile(`\*\*\*(.*?)\*\*\*`), "$1"},
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "$1"},
	{regexp.MustCompile(`\*(.*?)\*`), "$1"},
	{regexp.MustCompile(`___(.*?)___`), "$1"},
	{regexp.MustCompile(`__(.*?)__`), "$1"},
	{regexp.MustCompile(`_(.*?)_`), "$1"},

	{regexp.MustCompile(`(?m)^\s*\*\s+`), ""},
	{regexp.MustCompile(`(?m)^\s*-\s+`), ""},
	{regexp.MustCompile(`(?m)^\s*\+\s+`), ""},

	{regexp.MustCompile(`\*{3,}`), ""},
	{regexp.MustCompile(`(?m)^\s*\*\s*$`), ""},

	{regexp.MustCompile(`(?m)^(?:>\s+)+`), ""},
	{regexp.MustCompile(`(?m)^(?:#{1,6}\s+)+`), ""},

	{regexp.MustCompile(`\n\s*\n`), "\n\n"},
	{regexp.MustCompile(`[ \t]+`), " "},
}

// Markdown strips emphasis, list bullets, rules, block quotes and headings
// from text and normalizes whitespace. Numbered lists are kept.
//
// The rule set is re-applied until the text stops changing, so
// Markdown(Markdown(s)) == Markdown(s). No rule lengthens the text and the
// only same-length rewrite turns a tab into a space, so the loop ends.
func Markdown(text string) string {
	if text == "" {
		return ""
	}
	out := text
	for {
		next := pass(out)
		if next == out {
			return out
		}
		out = next
	}
}

func pass(text string) string {
	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return strings.TrimSpace(text)
}
