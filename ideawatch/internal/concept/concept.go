// Package concept turns a free-text idea (and an optional image) into the
// structured concept record used to query sources and filter noise.
package concept

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shahar42/competotor-agent/ideawatch/internal/ai"
)

// QueryKeywords is the number of search keywords joined into the query.
const QueryKeywords = 3

// ErrNoKeywords means the model returned no usable search keywords.
var ErrNoKeywords = errors.New("concept: no search keywords")

// Concepts is the structured concept record of an idea.
type Concepts struct {
	CoreFunction     string   `json:"core_function"`
	KeyFeatures      []string `json:"key_features"`
	SearchKeywords   []string `json:"search_keywords"`
	NegativeKeywords []string `json:"negative_keywords"`
	Category         string   `json:"category"`
}

// Query joins the first QueryKeywords search keywords with spaces.
func (c *Concepts) Query() string {
	kw := c.SearchKeywords
	if len(kw) > QueryKeywords {
		kw = kw[:QueryKeywords]
	}
	return strings.Join(kw, " ")
}

// Encode returns the JSON form stored on the idea.
func (c *Concepts) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses a stored concept record.
func Decode(s string) (*Concepts, error) {
	var raw rawConcepts
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("concept: decode: %w", err)
	}
	return raw.normalize(), nil
}

// ExtractionError is returned when the model call fails or its output does
// not have the required shape.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return "concept: extraction failed: " + e.Err.Error() }
func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor derives Concepts through the AI-call contract.
type Extractor struct {
	gen ai.Generator
}

// NewExtractor creates an Extractor.
func NewExtractor(gen ai.Generator) *Extractor {
	return &Extractor{gen: gen}
}

// Extract calls the model once and validates the result.
func (e *Extractor) Extract(ctx context.Context, description string, image *ai.Image) (*Concepts, error) {
	var raw rawConcepts
	req := ai.Request{Prompt: extractPrompt(description, image != nil), Image: image}
	if err := ai.GenerateJSON(ctx, e.gen, req, &raw); err != nil {
		return nil, &ExtractionError{Err: err}
	}
	c := raw.normalize()
	if len(c.SearchKeywords) == 0 {
		return nil, &ExtractionError{Err: ErrNoKeywords}
	}
	return c, nil
}

func extractPrompt(description string, withImage bool) string {
	var b strings.Builder
	b.WriteString("Extract key concepts from this product idea for searching.")
	if withImage {
		b.WriteString(" I have provided an image of the concept along with the description." +
			" Use visual details from the image (materials, shape, mechanism) to enhance the search keywords.")
	}
	b.WriteString(`

Crucial: Identify "Negative Keywords". These are terms that often appear in similar BUT WRONG contexts.
For example:
- If idea is "Cat Sleep Collar", negative keywords: ["dog", "bark", "training", "shock"] (to avoid dog collars or shock collars)
- If idea is "Surfboard Lamp", negative keywords: ["wax", "leash", "fin", "repair"] (to avoid surfboard accessories)

Idea Description: `)
	b.WriteString(description)
	b.WriteString(`

Return JSON with:
- core_function: what it does
- key_features: unique attributes
- search_keywords: 5 search terms
- negative_keywords: list of excluded terms
- category: product category

JSON only, no explanation.
`)
	return b.String()
}

// rawConcepts tolerates models that emit a single string where a list is
// expected.
type rawConcepts struct {
	CoreFunction     string      `json:"core_function"`
	KeyFeatures      flexStrings `json:"key_features"`
	SearchKeywords   flexStrings `json:"search_keywords"`
	NegativeKeywords flexStrings `json:"negative_keywords"`
	Category         string      `json:"category"`
}

func (r *rawConcepts) normalize() *Concepts {
	return &Concepts{
		CoreFunction:     strings.TrimSpace(r.CoreFunction),
		KeyFeatures:      compact(r.KeyFeatures, false),
		SearchKeywords:   compact(r.SearchKeywords, false),
		NegativeKeywords: compact(r.NegativeKeywords, true),
		Category:         strings.TrimSpace(r.Category),
	}
}

// compact trims entries, drops empties and duplicates, preserving order.
// fold lower-cases entries first.
func compact(in []string, fold bool) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if fold {
			s = strings.ToLower(s)
		}
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parts := strings.Split(s, ",")
		*f = parts
		return nil
	}
	var list []any
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case nil:
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	*f = out
	return nil
}
