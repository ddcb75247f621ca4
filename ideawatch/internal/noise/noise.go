// Package noise rejects listings whose title names a near-miss domain
// before any model call is spent on them.
package noise

import (
	"strings"

	"github.com/shahar42/competotor-agent/ideawatch/internal/source"
)

// Filter drops every listing whose name contains a negative keyword,
// case-insensitively. Only the name is inspected: descriptions often
// mention excluded terms incidentally ("not for dogs"). With no negative
// keywords the input is returned unchanged.
func Filter(listings []source.Listing, negatives []string) []source.Listing {
	terms := normalize(negatives)
	if len(terms) == 0 {
		return listings
	}
	out := make([]source.Listing, 0, len(listings))
	for _, l := range listings {
		if !matchesAny(strings.ToLower(l.Name), terms) {
			out = append(out, l)
		}
	}
	return out
}

func normalize(negatives []string) []string {
	terms := make([]string, 0, len(negatives))
	for _, n := range negatives {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			terms = append(terms, n)
		}
	}
	return terms
}

func matchesAny(name string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}
