// CLAUDE:SUMMARY Serper.dev Google search adapter with product, ProductHunt, Amazon and raw web modes.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// DefaultSerperEndpoint is the Serper search API.
const DefaultSerperEndpoint = "https://google.serper.dev/search"

// SerperMode selects how a Serper search is phrased and filtered.
type SerperMode int

const (
	// SerperProducts searches "<query> buy product" and keeps product-looking URLs.
	SerperProducts SerperMode = iota
	// SerperProductHunt searches site:producthunt.com and keeps /products/ pages.
	SerperProductHunt
	// SerperAmazon searches site:amazon.com and keeps /dp/ and /gp/product/ pages.
	SerperAmazon
	// SerperWeb runs the query unmodified and keeps every result.
	SerperWeb
)

// Serper searches Google through the Serper API.
type Serper struct {
	apiKey   string
	endpoint string
	client   *http.Client
	mode     SerperMode
	max      int
}

// SerperOption configures a Serper adapter.
type SerperOption func(*Serper)

// WithSerperEndpoint overrides the API URL (tests).
func WithSerperEndpoint(u string) SerperOption { return func(s *Serper) { s.endpoint = u } }

// WithSerperClient sets the HTTP client.
func WithSerperClient(c *http.Client) SerperOption { return func(s *Serper) { s.client = c } }

// WithSerperMax caps the number of listings returned.
func WithSerperMax(n int) SerperOption { return func(s *Serper) { s.max = n } }

// NewSerper creates an adapter. An empty apiKey disables it: Search returns
// no listings and no error.
func NewSerper(apiKey string, mode SerperMode, opts ...SerperOption) *Serper {
	s := &Serper{apiKey: apiKey, endpoint: DefaultSerperEndpoint, client: defaultClient(), mode: mode, max: 10}
	for _, o := range opts {
		o(s)
	}
	return s
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search implements Searcher.
func (s *Serper) Search(ctx context.Context, query string) ([]Listing, error) {
	if s.apiKey == "" {
		return nil, nil
	}
	payload := serperRequest{Q: query}
	window := 20
	switch s.mode {
	case SerperProducts:
		payload.Q = query + " buy product"
	case SerperProductHunt:
		payload.Q = "site:producthunt.com " + query
		payload.Num = 15
		window = 15
	case SerperAmazon:
		payload.Q = "site:amazon.com " + query
		payload.Num = 15
		window = 15
	case SerperWeb:
		payload.Num = 10
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("serper: new request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var resp serperResponse
	if err := doJSON(s.client, req, &resp); err != nil {
		return nil, fmt.Errorf("serper: %w", err)
	}

	organic := resp.Organic
	if len(organic) > window {
		organic = organic[:window]
	}
	var out []Listing
	for _, item := range organic {
		if !s.keep(item.Link) {
			continue
		}
		l := Listing{Name: item.Title, URL: item.Link, Description: item.Snippet}
		if s.mode == SerperAmazon {
			l.Price = parseDollarPrice(item.Snippet)
		}
		out = append(out, l)
		if len(out) >= s.max {
			break
		}
	}
	return out, nil
}

func (s *Serper) keep(link string) bool {
	lower := strings.ToLower(link)
	switch s.mode {
	case SerperProducts:
		return IsProductURL(link)
	case SerperProductHunt:
		return strings.Contains(lower, "/products/")
	case SerperAmazon:
		return strings.Contains(lower, "/dp/") || strings.Contains(lower, "/gp/product/")
	}
	return link != ""
}

var (
	productHints = []string{
		"product", "buy", "shop", "store", "item", "purchase", "cart", "/p/",
		"/products/", "amazon.com", "ebay.com", "etsy.com", "walmart.com",
		"target.com", "aliexpress.com", "shopify",
	}
	nonProductHints = []string{
		"blog", "article", "news", "trends", "review", "about", "contact", "forum",
		"reddit.com", "youtube.com", "pinterest.com", "trendhunter.com", "instructables.com",
	}
)

// IsProductURL reports whether a URL looks like a product page rather than
// an article, review or forum.
func IsProductURL(u string) bool {
	if u == "" {
		return false
	}
	lower := strings.ToLower(u)
	for _, k := range nonProductHints {
		if strings.Contains(lower, k) {
			return false
		}
	}
	for _, k := range productHints {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
