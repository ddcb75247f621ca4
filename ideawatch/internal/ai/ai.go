// Package ai is the narrow contract the scan pipeline uses to talk to a
// generative model: a prompt (and optional image) in, text out.
//
// Client wraps any Generator with the process-wide minimum-interval Gate,
// a per-call timeout and bounded exponential backoff on RateLimitError.
// All other backend errors are returned after the first attempt.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Image is an optional inline image sent alongside the prompt.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request is one model call.
type Request struct {
	Prompt string
	Image  *Image
	// JSON asks the backend for an application/json response.
	JSON bool
}

// Generator produces a text completion for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var (
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("ai: empty response")
	// ErrMalformed wraps JSON decoding failures of model output.
	ErrMalformed = errors.New("ai: malformed response")
)

// RateLimitError is a rejection by the model provider's rate limiter.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return "ai: rate limited"
	}
	return fmt.Sprintf("ai: rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err is or wraps a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
