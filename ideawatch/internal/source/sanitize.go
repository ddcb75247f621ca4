package source

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Clean strips markup from listing text, unescapes entities, collapses
// whitespace and drops listings without a name or URL. tag fills Source
// when the adapter left it empty.
func Clean(listings []Listing, tag string) []Listing {
	out := make([]Listing, 0, len(listings))
	for _, l := range listings {
		l.Name = cleanText(l.Name)
		l.Description = cleanText(l.Description)
		l.URL = strings.TrimSpace(l.URL)
		if l.Name == "" || l.URL == "" {
			continue
		}
		if l.Source == "" {
			l.Source = tag
		}
		out = append(out, l)
	}
	return out
}

func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}
