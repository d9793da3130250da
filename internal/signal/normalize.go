// Package signal turns free-text trade calls into validated TradeSignals.
package signal

import (
	"html"
	"regexp"
	"strings"

	"signal_relay/internal/models"
)

var (
	reMarkdownLink = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	reEmphasis     = regexp.MustCompile("[*_`~]+")
	reHSpace       = regexp.MustCompile(`[ \t\x{00A0}\x{2007}\x{202F}]+`)
)

// CleanText decodes entities, strips markdown and collapses horizontal
// whitespace. Lines are trimmed, blank lines dropped, and the rest joined
// with "\n" so line-anchored patterns keep working.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = reMarkdownLink.ReplaceAllString(s, "$1")
	s = reEmphasis.ReplaceAllString(s, "")
	s = reHSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// NormalizeMessage joins the message body with every embed's title,
// description, field names/values and footer, in document order.
func NormalizeMessage(m models.Message) string {
	parts := []string{m.Content}
	for _, e := range m.Embeds {
		parts = append(parts, e.Title, e.Description)
		for _, f := range e.Fields {
			parts = append(parts, f.Name, f.Value)
		}
		if e.Footer != nil {
			parts = append(parts, e.Footer.Text)
		}
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return CleanText(strings.Join(nonEmpty, "\n"))
}
