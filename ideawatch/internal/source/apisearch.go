// CLAUDE:SUMMARY Generic JSON-API source: URL template, ${ENV} headers, dot-path result walker and field mapping.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// APIConfig describes how to call and parse a JSON search API.
type APIConfig struct {
	Name string `yaml:"name" json:"name"`
	// URL contains a {query} placeholder, replaced with the query-escaped query.
	URL        string            `yaml:"url" json:"url"`
	Method     string            `yaml:"method" json:"method"`   // default GET
	Headers    map[string]string `yaml:"headers" json:"headers"` // ${ENV_VAR} expanded
	ResultPath string            `yaml:"result_path" json:"result_path"`
	// Fields maps name, url, description and price to dot paths in each item.
	Fields     map[string]string `yaml:"fields" json:"fields"`
	MaxResults int               `yaml:"max_results" json:"max_results"`
}

// KickstarterConfig is the discover endpoint of Kickstarter in JSON form.
func KickstarterConfig() APIConfig {
	return APIConfig{
		Name: "kickstarter",
		URL:  "https://www.kickstarter.com/discover/advanced?format=json&sort=magic&term={query}",
		Headers: map[string]string{
			"User-Agent": defaultUserAgent,
			"Accept":     "application/json",
		},
		ResultPath: "projects",
		Fields: map[string]string{
			"name":        "name",
			"url":         "urls.web.project",
			"description": "blurb",
		},
		MaxResults: 10,
	}
}

// APISearch is a Searcher over a configured JSON API.
type APISearch struct {
	cfg    APIConfig
	client *http.Client
}

// NewAPISearch creates the adapter.
func NewAPISearch(cfg APIConfig, client *http.Client) *APISearch {
	if client == nil {
		client = defaultClient()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return &APISearch{cfg: cfg, client: client}
}

// Name returns the configured source name.
func (a *APISearch) Name() string { return a.cfg.Name }

// Search implements Searcher.
func (a *APISearch) Search(ctx context.Context, query string) ([]Listing, error) {
	method := a.cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	target := strings.ReplaceAll(a.cfg.URL, "{query}", url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("apisearch: new request: %w", err)
	}
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, os.Expand(v, os.Getenv))
	}

	var raw any
	if err := doJSON(a.client, req, &raw); err != nil {
		return nil, fmt.Errorf("apisearch %s: %w", a.cfg.Name, err)
	}
	items, err := walkPath(raw, a.cfg.ResultPath)
	if err != nil {
		return nil, fmt.Errorf("apisearch %s: walk path %q: %w", a.cfg.Name, a.cfg.ResultPath, err)
	}

	var out []Listing
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, a.extract(obj))
		if len(out) >= a.cfg.MaxResults {
			break
		}
	}
	return out, nil
}

func (a *APISearch) extract(obj map[string]any) Listing {
	field := func(name string) any {
		path, ok := a.cfg.Fields[name]
		if !ok {
			path = name
		}
		return lookup(obj, path)
	}
	return Listing{
		Name:        asString(field("name")),
		URL:         asString(field("url")),
		Description: asString(field("description")),
		Price:       asFloat(field("price")),
	}
}

// walkPath walks a dot path to the array of items. An empty path means the
// root itself is the array.
func walkPath(v any, path string) ([]any, error) {
	current := v
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected object at %q, got %T", part, current)
			}
			if current, ok = obj[part]; !ok {
				return nil, fmt.Errorf("key %q not found", part)
			}
		}
	}
	arr, ok := current.([]any)
	if !ok {
		return nil, fmt.Errorf("not an array")
	}
	return arr, nil
}

// lookup resolves a dot path in a decoded JSON object, nil when absent.
func lookup(v any, path string) any {
	if path == "" {
		return nil
	}
	for _, part := range strings.Split(path, ".") {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[part]
	}
	return v
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		return parsePrice(t)
	}
	return nil
}
