package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// DefaultSerpAPIEndpoint is the SerpAPI search URL.
const DefaultSerpAPIEndpoint = "https://serpapi.com/search"

// Patents searches Google Patents through SerpAPI.
type Patents struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewPatents creates the adapter. An empty apiKey disables it.
func NewPatents(apiKey string, client *http.Client) *Patents {
	if client == nil {
		client = defaultClient()
	}
	return &Patents{apiKey: apiKey, endpoint: DefaultSerpAPIEndpoint, client: client}
}

// WithEndpoint overrides the API URL (tests).
func (p *Patents) WithEndpoint(u string) *Patents {
	p.endpoint = u
	return p
}

type serpAPIPatents struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		PDF     string `json:"pdf"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search implements Searcher.
func (p *Patents) Search(ctx context.Context, query string) ([]Listing, error) {
	if p.apiKey == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("engine", "google_patents")
	q.Set("q", query)
	q.Set("api_key", p.apiKey)
	q.Set("num", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("patents: new request: %w", err)
	}
	var resp serpAPIPatents
	if err := doJSON(p.client, req, &resp); err != nil {
		return nil, fmt.Errorf("patents: %w", err)
	}

	results := resp.OrganicResults
	if len(results) > 10 {
		results = results[:10]
	}
	out := make([]Listing, 0, len(results))
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		link := r.PDF
		if link == "" {
			link = r.Link
		}
		desc := r.Snippet
		if desc == "" {
			desc = "No description available"
		}
		out = append(out, Listing{
			Name:        "Patent: " + title,
			URL:         link,
			Description: truncateRunes(desc, 500),
		})
	}
	return out, nil
}
