package format

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Preview is a link card built from the URL alone; the target is never fetched.
// All string fields are HTML-escaped.
type Preview struct {
	URL   string `json:"url"`
	Host  string `json:"host"`
	Title string `json:"title"`
	// Fallback marks a URL that could not be parsed into host and path.
	Fallback bool `json:"fallback,omitempty"`
}

var separators = strings.NewReplacer("-", " ", "_", " ", "+", " ", ".", " ")

func Previews(s string) []Preview {
	urls := URLs(s)
	if len(urls) == 0 {
		return nil
	}
	out := make([]Preview, 0, len(urls))
	for _, u := range urls {
		out = append(out, PreviewFor(u))
	}
	return out
}

func PreviewFor(raw string) Preview {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return Preview{URL: Escape(raw), Title: Escape(raw), Fallback: true}
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	title := humanize(lastSegment(u.Path))
	if title == "" {
		title = host
	}
	return Preview{URL: Escape(raw), Host: Escape(host), Title: Escape(title)}
}

func lastSegment(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	seg := p[strings.LastIndex(p, "/")+1:]
	if dec, err := url.PathUnescape(seg); err == nil {
		seg = dec
	}
	return strings.TrimSuffix(seg, path.Ext(seg))
}

func humanize(seg string) string {
	words := strings.Fields(separators.Replace(seg))
	if len(words) == 0 {
		return ""
	}
	// a Caser keeps state, so one per call
	return cases.Title(language.English).String(strings.Join(words, " "))
}
