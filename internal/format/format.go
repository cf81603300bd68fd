// Package format turns untrusted post text into safe HTML fragments.
package format

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/tazhibayda/feed-service/internal/domain"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

const trailingPunct = ".,;:!?)]}'\""

// Escape HTML-escapes user text.
func Escape(s string) string { return html.EscapeString(s) }

// span is a URL occurrence as byte offsets into the source text.
type span struct{ start, end int }

func findURLs(s string) []span {
	var out []span
	for _, m := range urlPattern.FindAllStringIndex(s, -1) {
		end := m[1]
		for end > m[0] && strings.ContainsRune(trailingPunct, rune(s[end-1])) {
			end--
		}
		// "http://" alone is not a link
		if u := s[m[0]:end]; strings.HasSuffix(u, "://") {
			continue
		}
		out = append(out, span{m[0], end})
	}
	return out
}

// URLs returns every link found in s, in order of appearance.
func URLs(s string) []string {
	spans := findURLs(s)
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, s[sp.start:sp.end])
	}
	return out
}

// Linkify escapes s and wraps each URL in an anchor opening in a new tab.
// Text outside URLs is only escaped.
func Linkify(s string) string {
	var b strings.Builder
	last := 0
	for _, sp := range findURLs(s) {
		b.WriteString(Escape(s[last:sp.start]))
		u := Escape(s[sp.start:sp.end])
		fmt.Fprintf(&b, `<a href="%s" target="_blank" rel="noopener noreferrer">%s</a>`, u, u)
		last = sp.end
	}
	b.WriteString(Escape(s[last:]))
	return b.String()
}

type FormattedPost struct {
	ID          string    `json:"id"`
	HTML        string    `json:"html"`
	Category    string    `json:"category"`
	AuthorEmail string    `json:"authorEmail"`
	CreatedAt   time.Time `json:"createdAt"`
	When        string    `json:"when"`
	Previews    []Preview `json:"previews,omitempty"`
}

// FormatPost renders p relative to now. Category and author are escaped here so
// every field of the result is safe to insert as HTML.
func FormatPost(p domain.Post, now time.Time) FormattedPost {
	return FormattedPost{
		ID:          p.ID,
		HTML:        Linkify(p.Content),
		Category:    Escape(p.Category),
		AuthorEmail: Escape(p.AuthorEmail),
		CreatedAt:   p.CreatedAt,
		When:        TimeAgo(p.CreatedAt, now),
		Previews:    Previews(p.Content),
	}
}

func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "just now"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
	return t.Format("Jan 2, 2006")
}
