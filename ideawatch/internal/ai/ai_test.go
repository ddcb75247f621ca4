package ai

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/genai"
)

func fastOpts() Options {
	return Options{BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second}
}

func TestClient_RetriesRateLimit(t *testing.T) {
	// WHAT: Rate-limit rejections are retried until success.
	// WHY: Providers throttle bursts; a scan should ride through them.
	var calls atomic.Int32
	backend := GeneratorFunc(func(_ context.Context, _ Request) (string, error) {
		if calls.Add(1) < 3 {
			return "", &RateLimitError{}
		}
		return "ok", nil
	})
	var outcomes []string
	opts := fastOpts()
	opts.Observe = func(o string) { outcomes = append(outcomes, o) }

	out, err := NewClient(backend, nil, opts).Generate(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "ok" || calls.Load() != 3 {
		t.Fatalf("out=%q calls=%d", out, calls.Load())
	}
	if len(outcomes) != 3 || outcomes[2] != OutcomeOK || outcomes[0] != OutcomeRateLimited {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

func TestClient_RateLimitExhausted(t *testing.T) {
	// WHAT: After MaxAttempts rate limits the RateLimitError reaches the caller.
	// WHY: Retry is bounded.
	var calls atomic.Int32
	backend := GeneratorFunc(func(_ context.Context, _ Request) (string, error) {
		calls.Add(1)
		return "", &RateLimitError{}
	})
	opts := fastOpts()
	opts.MaxAttempts = 3

	_, err := NewClient(backend, nil, opts).Generate(context.Background(), Request{})
	if !IsRateLimit(err) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_HonoursRetryAfter(t *testing.T) {
	// WHAT: A rate limit carrying a server delay waits that long before the
	// next attempt, and exhaustion still reports the RateLimitError.
	// WHY: Retrying sooner than the quota reset burns an attempt.
	var calls atomic.Int32
	backend := GeneratorFunc(func(_ context.Context, _ Request) (string, error) {
		if calls.Add(1) == 1 {
			return "", &RateLimitError{RetryAfter: 40 * time.Millisecond}
		}
		return "ok", nil
	})
	start := time.Now()
	out, err := NewClient(backend, nil, fastOpts()).Generate(context.Background(), Request{})
	if err != nil || out != "ok" {
		t.Fatalf("out=%q err=%v", out, err)
	}
	if waited := time.Since(start); waited < 40*time.Millisecond {
		t.Fatalf("waited %v, want >= 40ms", waited)
	}

	always := GeneratorFunc(func(_ context.Context, _ Request) (string, error) {
		return "", &RateLimitError{RetryAfter: time.Millisecond}
	})
	opts := fastOpts()
	opts.MaxAttempts = 2
	_, err = NewClient(always, nil, opts).Generate(context.Background(), Request{})
	if !IsRateLimit(err) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
}

func TestClassifyGeminiError_RetryInfo(t *testing.T) {
	err := classifyGeminiError(genai.APIError{
		Code:   http.StatusTooManyRequests,
		Status: "RESOURCE_EXHAUSTED",
		Details: []map[string]any{
			{"@type": "type.googleapis.com/google.rpc.QuotaFailure"},
			{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "37s"},
		},
	})
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter != 37*time.Second {
		t.Fatalf("err = %#v", err)
	}

	err = classifyGeminiError(genai.APIError{Code: http.StatusTooManyRequests})
	if !errors.As(err, &rl) || rl.RetryAfter != 0 {
		t.Fatalf("no hint err = %#v", err)
	}
	if err := classifyGeminiError(genai.APIError{Code: http.StatusBadRequest}); IsRateLimit(err) {
		t.Fatalf("400 classified as rate limit: %v", err)
	}
}

func TestClient_OtherErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	backend := GeneratorFunc(func(_ context.Context, _ Request) (string, error) {
		calls.Add(1)
		return "", boom
	})

	_, err := NewClient(backend, nil, fastOpts()).Generate(context.Background(), Request{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestClient_EmptyResponse(t *testing.T) {
	backend := GeneratorFunc(func(_ context.Context, _ Request) (string, error) { return "", nil })
	_, err := NewClient(backend, nil, fastOpts()).Generate(context.Background(), Request{})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestClient_PerCallTimeout(t *testing.T) {
	// WHAT: A hung backend call fails with the call's own deadline.
	// WHY: A timeout is that call's failure, not the scan's.
	backend := GeneratorFunc(func(ctx context.Context, _ Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	opts := fastOpts()
	opts.Timeout = 20 * time.Millisecond

	_, err := NewClient(backend, nil, opts).Generate(context.Background(), Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestGate_MinimumInterval(t *testing.T) {
	// WHAT: Two concurrent calls through a shared gate start at least one interval apart.
	// WHY: The provider limit is global across all scorer workers.
	const interval = 100 * time.Millisecond
	gate := NewGate(interval)

	var mu sync.Mutex
	var starts []time.Time
	backend := GeneratorFunc(func(_ context.Context, _ Request) (string, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return "ok", nil
	})
	a := NewClient(backend, gate, fastOpts())
	b := NewClient(backend, gate, fastOpts())

	var wg sync.WaitGroup
	for _, c := range []*Client{a, b} {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if _, err := c.Generate(context.Background(), Request{}); err != nil {
				t.Error(err)
			}
		}(c)
	}
	wg.Wait()

	if len(starts) != 2 {
		t.Fatalf("starts = %d", len(starts))
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	if gap := starts[1].Sub(starts[0]); gap < interval-10*time.Millisecond {
		t.Fatalf("gap = %v, want >= %v", gap, interval)
	}
}

func TestGate_Disabled(t *testing.T) {
	gate := NewGate(0)
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := gate.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("disabled gate should not block")
	}
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := CleanJSON(in); got != want {
			t.Errorf("CleanJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateJSON(t *testing.T) {
	var sawJSON bool
	g := GeneratorFunc(func(_ context.Context, req Request) (string, error) {
		sawJSON = req.JSON
		return "```json\n{\"score\": 7}\n```", nil
	})
	var v struct {
		Score int `json:"score"`
	}
	if err := GenerateJSON(context.Background(), g, Request{Prompt: "p"}, &v); err != nil {
		t.Fatal(err)
	}
	if v.Score != 7 || !sawJSON {
		t.Fatalf("score=%d json=%v", v.Score, sawJSON)
	}

	bad := GeneratorFunc(func(_ context.Context, _ Request) (string, error) { return "not json", nil })
	if err := GenerateJSON(context.Background(), bad, Request{}, &v); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}
