package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// RodLoader renders pages in headless Chrome with stealth patches applied.
// The browser is launched on first use and reused until Close.
type RodLoader struct {
	remoteURL string
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewRodLoader creates a loader. remoteURL connects to an existing Chrome
// DevTools endpoint; empty launches a local headless Chrome.
func NewRodLoader(remoteURL string, logger *slog.Logger) *RodLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodLoader{remoteURL: remoteURL, timeout: 30 * time.Second, logger: logger}
}

func (l *RodLoader) ensure() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser != nil {
		return l.browser, nil
	}

	wsURL := l.remoteURL
	if wsURL == "" {
		ln := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
		u, err := ln.Launch()
		if err != nil {
			return nil, fmt.Errorf("rod: launch: %w", err)
		}
		wsURL = u
		l.lnch = ln
		l.logger.Info("rod: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("rod: connect: %w", err)
	}
	l.browser = b
	return b, nil
}

// Load implements PageLoader.
func (l *RodLoader) Load(ctx context.Context, pageURL string) (string, error) {
	b, err := l.ensure()
	if err != nil {
		return "", err
	}
	page, err := stealth.Page(b)
	if err != nil {
		return "", fmt.Errorf("rod: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return "", fmt.Errorf("rod: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		l.logger.Warn("rod: wait load timeout", "url", pageURL, "error", err)
	}
	html, err := page.Context(navCtx).HTML()
	if err != nil {
		return "", fmt.Errorf("rod: html: %w", err)
	}
	return html, nil
}

// Close shuts the browser down.
func (l *RodLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	if l.lnch != nil {
		l.lnch.Cleanup()
		l.lnch = nil
	}
	return err
}
