// Package scoring asks the model how closely an existing product matches an
// idea and applies the acceptance threshold.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shahar42/competotor-agent/ideawatch/internal/ai"
	"github.com/shahar42/competotor-agent/ideawatch/internal/source"
)

// DefaultThreshold is the minimum score of a competitor.
const DefaultThreshold = 60

// Result is one similarity judgement.
type Result struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
	Advantage string `json:"advantage"`
}

// ScoringError is one listing's scoring failure. The caller drops the
// listing and keeps going.
type ScoringError struct {
	URL string
	Err error
}

func (e *ScoringError) Error() string { return fmt.Sprintf("scoring %s: %v", e.URL, e.Err) }
func (e *ScoringError) Unwrap() error { return e.Err }

// Scorer scores listings against an idea.
type Scorer struct {
	gen       ai.Generator
	threshold int
}

// NewScorer creates a Scorer. threshold <= 0 uses DefaultThreshold.
func NewScorer(gen ai.Generator, threshold int) *Scorer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Scorer{gen: gen, threshold: threshold}
}

// Accept reports whether a score clears the threshold (inclusive).
func (s *Scorer) Accept(score int) bool { return score >= s.threshold }

// Score makes one model call for the listing.
func (s *Scorer) Score(ctx context.Context, idea string, l source.Listing) (*Result, error) {
	var raw rawResult
	if err := ai.GenerateJSON(ctx, s.gen, ai.Request{Prompt: scorePrompt(idea, l)}, &raw); err != nil {
		return nil, &ScoringError{URL: l.URL, Err: err}
	}
	if raw.Score == nil {
		return nil, &ScoringError{URL: l.URL, Err: fmt.Errorf("%w: missing score", ai.ErrMalformed)}
	}
	return &Result{
		Score:     clamp(*raw.Score),
		Reasoning: strings.TrimSpace(raw.Reasoning),
		Advantage: strings.TrimSpace(raw.UserAdvantage),
	}, nil
}

func scorePrompt(idea string, l source.Listing) string {
	price := "N/A"
	if l.Price != nil {
		price = strconv.FormatFloat(*l.Price, 'f', 2, 64)
	}
	desc := l.Description
	if desc == "" {
		desc = "N/A"
	}
	return fmt.Sprintf(`Compare this invention idea to an existing product:

USER'S IDEA:
%s

EXISTING PRODUCT:
Name: %s
Description: %s
Price: %s

Respond with JSON:
{
  "score": <0-100 similarity percentage>,
  "reasoning": "<why they are/aren't similar>",
  "user_advantage": "<what makes user's idea unique, if anything>"
}

JSON only.
`, idea, l.Name, desc, price)
}

type rawResult struct {
	Score         *flexScore `json:"score"`
	Reasoning     string     `json:"reasoning"`
	UserAdvantage string     `json:"user_advantage"`
}

// flexScore accepts 85, 85.5, "85" and "85%".
type flexScore float64

func (f *flexScore) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("score %q: %w", s, err)
		}
		*f = flexScore(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexScore(v)
	return nil
}

// clamp truncates fractional scores so a value just under the threshold
// never rounds up into acceptance.
func clamp(v flexScore) int {
	n := int(math.Floor(float64(v)))
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	}
	return n
}
