// CLAUDE:SUMMARY Builders for the product sources, complaint search, Gemini backend and metrics, for callers outside the module tree.
package ideawatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/shahar42/competotor-agent/ideawatch/internal/ai"
	"github.com/shahar42/competotor-agent/ideawatch/internal/metrics"
	"github.com/shahar42/competotor-agent/ideawatch/internal/source"
)

type (
	APIConfig = source.APIConfig
	Searcher  = source.Searcher
	Metrics   = metrics.Metrics
)

// SourcesConfig configures the standard source set. Keys are read from the
// environment, never from the file.
type SourcesConfig struct {
	SerperKey  string `yaml:"-"`
	SerpAPIKey string `yaml:"-"`
	// Browser renders AliExpress in headless Chrome instead of a plain GET.
	Browser bool `yaml:"browser"`
	// BrowserURL is an existing DevTools endpoint. Empty launches Chrome.
	BrowserURL       string        `yaml:"browser_url"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
	APISources       []APIConfig   `yaml:"api_sources"`
}

// NewSourceRegistry builds the registry in its fixed order. The returned
// func releases the browser, if one was started.
func NewSourceRegistry(cfg SourcesConfig, logger *slog.Logger) (*Registry, func() error, error) {
	closer := func() error { return nil }
	d := source.Defaults{
		SerperKey:        cfg.SerperKey,
		SerpAPIKey:       cfg.SerpAPIKey,
		APISources:       cfg.APISources,
		CacheTTL:         cfg.CacheTTL,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerReset:     cfg.BreakerReset,
	}
	if cfg.Browser {
		l := source.NewRodLoader(cfg.BrowserURL, logger)
		d.Loader = l
		closer = l.Close
	}
	reg, err := source.NewDefaultRegistry(d)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return reg, closer, nil
}

// NewComplaintSearch returns the unfiltered web search used for gap
// analysis, or nil without a key.
func NewComplaintSearch(serperKey string) Searcher {
	if serperKey == "" {
		return nil
	}
	return source.NewSerper(serperKey, source.SerperWeb)
}

// NewGemini creates the Gemini backend. Empty model uses the default.
func NewGemini(ctx context.Context, apiKey, model string) (Generator, error) {
	g, err := ai.NewGemini(ctx, apiKey, model)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// NewMetrics creates the Prometheus collectors on a private registry.
func NewMetrics() *Metrics { return metrics.New() }
