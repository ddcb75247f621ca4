// CLAUDE:SUMMARY AliExpress mobile wholesale adapter: loads the search page and parses product cards.
package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// PageLoader fetches the rendered HTML of a page.
type PageLoader interface {
	Load(ctx context.Context, pageURL string) (string, error)
}

// HTTPLoader loads pages with a plain HTTP GET.
type HTTPLoader struct {
	Client    *http.Client
	UserAgent string
}

// Load implements PageLoader.
func (l *HTTPLoader) Load(ctx context.Context, pageURL string) (string, error) {
	client := l.Client
	if client == nil {
		client = defaultClient()
	}
	return fetchText(ctx, client, pageURL, l.UserAgent)
}

const (
	aliExpressSearchBase = "https://m.aliexpress.com"
	aliExpressLinkBase   = "https://www.aliexpress.com"
)

// AliExpress scrapes the mobile wholesale search page.
type AliExpress struct {
	loader PageLoader
	base   string
	max    int
}

// NewAliExpress creates the adapter. A nil loader uses HTTPLoader.
func NewAliExpress(loader PageLoader) *AliExpress {
	if loader == nil {
		loader = &HTTPLoader{}
	}
	return &AliExpress{loader: loader, base: aliExpressSearchBase, max: 10}
}

// WithBase overrides the search host (tests).
func (a *AliExpress) WithBase(u string) *AliExpress {
	a.base = strings.TrimRight(u, "/")
	return a
}

// Search implements Searcher.
func (a *AliExpress) Search(ctx context.Context, query string) ([]Listing, error) {
	pageURL := fmt.Sprintf("%s/wholesale/%s.html", a.base, strings.ReplaceAll(strings.TrimSpace(query), " ", "-"))
	body, err := a.loader.Load(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("aliexpress: load: %w", err)
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("aliexpress: parse: %w", err)
	}
	return parseAliExpressCards(doc, a.max), nil
}

var aliExpressCardSelectors = []string{
	"div[class*=product][class*=item]",
	"a[class*=product][class*=link]",
	"div[data-product-id]",
}

func parseAliExpressCards(doc *html.Node, max int) []Listing {
	var cards []*html.Node
	for _, sel := range aliExpressCardSelectors {
		if cards = selectAll(doc, sel); len(cards) > 0 {
			break
		}
	}
	if len(cards) > max {
		cards = cards[:max]
	}

	var out []Listing
	for _, card := range cards {
		name := textOf(selectFirst(card, "h1", "h2", "h3", "div[class*=title]", "a[class*=title]"))

		link := card
		if card.Data != "a" {
			link = selectFirst(card, "a[href]")
		}
		href := ""
		if link != nil {
			href = strings.TrimSpace(getAttr(link, "href"))
		}
		switch {
		case strings.HasPrefix(href, "//"):
			href = "https:" + href
		case href != "" && !strings.HasPrefix(href, "http"):
			href = aliExpressLinkBase + "/" + strings.TrimLeft(href, "/")
		}

		var price *float64
		if p := selectFirst(card, "[class*=price]"); p != nil {
			price = parsePrice(textOf(p))
		}

		desc := textOf(selectFirst(card, "[class*=description]", "[class*=detail]"))
		if desc == "" {
			desc = name
		}
		if name == "" || href == "" {
			continue
		}
		out = append(out, Listing{Name: name, URL: href, Price: price, Description: desc})
	}
	return out
}
