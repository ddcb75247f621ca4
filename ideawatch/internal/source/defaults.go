package source

import (
	"fmt"
	"net/http"
	"time"
)

// Defaults configures the standard source set.
type Defaults struct {
	SerperKey  string
	SerpAPIKey string
	// Loader renders AliExpress pages. Nil uses a plain HTTP GET.
	Loader     PageLoader
	APISources []APIConfig
	Client     *http.Client

	CacheTTL         time.Duration // 0 disables caching
	BreakerThreshold int           // default 5
	BreakerReset     time.Duration // default 10m
}

// NewDefaultRegistry registers, in order: aliexpress, kickstarter, google,
// producthunt, amazon, patents, then every configured API source. Each is
// wrapped in its own breaker and, when CacheTTL > 0, a shared result cache.
func NewDefaultRegistry(d Defaults) (*Registry, error) {
	if d.Client == nil {
		d.Client = defaultClient()
	}
	if d.BreakerThreshold <= 0 {
		d.BreakerThreshold = 5
	}
	if d.BreakerReset <= 0 {
		d.BreakerReset = 10 * time.Minute
	}
	loader := d.Loader
	if loader == nil {
		loader = &HTTPLoader{Client: d.Client}
	}

	var cache *Cache
	if d.CacheTTL > 0 {
		cache = NewCache(d.CacheTTL)
	}

	reg := NewRegistry()
	add := func(name string, s Searcher) error {
		s = WithBreaker(s, NewBreaker(
			WithBreakerThreshold(d.BreakerThreshold),
			WithBreakerResetTimeout(d.BreakerReset),
		))
		if cache != nil {
			s = cache.Wrap(name, s)
		}
		return reg.Register(name, s)
	}

	builtins := []Entry{
		{"aliexpress", NewAliExpress(loader)},
		{"kickstarter", NewAPISearch(KickstarterConfig(), d.Client)},
		{"google", NewSerper(d.SerperKey, SerperProducts, WithSerperClient(d.Client))},
		{"producthunt", NewSerper(d.SerperKey, SerperProductHunt, WithSerperClient(d.Client))},
		{"amazon", NewSerper(d.SerperKey, SerperAmazon, WithSerperClient(d.Client))},
		{"patents", NewPatents(d.SerpAPIKey, d.Client)},
	}
	for _, e := range builtins {
		if err := add(e.Name, e.Searcher); err != nil {
			return nil, err
		}
	}
	for _, cfg := range d.APISources {
		if cfg.Name == "" || cfg.URL == "" {
			return nil, fmt.Errorf("source: api source needs name and url")
		}
		if err := add(cfg.Name, NewAPISearch(cfg, d.Client)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
