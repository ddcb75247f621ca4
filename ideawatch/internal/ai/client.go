// CLAUDE:SUMMARY Rate-gated, timeout-bounded, backoff-retrying wrapper around a model backend.
package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Outcome labels reported to Options.Observe.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// Options tunes a Client.
type Options struct {
	Timeout     time.Duration // per attempt, default 60s
	MaxAttempts int           // default 4
	BaseBackoff time.Duration // default 2s
	MaxBackoff  time.Duration // default 30s
	Logger      *slog.Logger
	// Observe is called once per attempt with an Outcome label.
	Observe func(outcome string)
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 2 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Observe == nil {
		o.Observe = func(string) {}
	}
}

// Client is the AI-call contract used by the pipeline.
type Client struct {
	backend Generator
	gate    *Gate
	opts    Options
}

// NewClient wraps backend. gate may be shared with other clients.
func NewClient(backend Generator, gate *Gate, opts Options) *Client {
	opts.defaults()
	return &Client{backend: backend, gate: gate, opts: opts}
}

// Generate issues req through the gate, retrying only on RateLimitError.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	attempt := 0
	var limited *RateLimitError
	op := func() (string, error) {
		attempt++
		if err := c.gate.Wait(ctx); err != nil {
			return "", backoff.Permanent(err)
		}
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		out, err := c.backend.Generate(callCtx, req)
		switch {
		case err == nil && out == "":
			c.opts.Observe(OutcomeError)
			return "", backoff.Permanent(ErrEmptyResponse)
		case err == nil:
			c.opts.Observe(OutcomeOK)
			return out, nil
		case errors.As(err, &limited):
			c.opts.Observe(OutcomeRateLimited)
			c.opts.Logger.Warn("ai: rate limited", "attempt", attempt, "max_attempts", c.opts.MaxAttempts,
				"retry_after", limited.RetryAfter)
			if limited.RetryAfter > 0 {
				return "", &backoff.RetryAfterError{Duration: limited.RetryAfter}
			}
			return "", err
		default:
			c.opts.Observe(OutcomeError)
			return "", backoff.Permanent(err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.BaseBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.1

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		var wait *backoff.RetryAfterError
		if errors.As(err, &wait) && limited != nil {
			err = limited
		}
		return "", err
	}
	return out, nil
}
