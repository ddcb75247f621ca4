package concept

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shahar42/competotor-agent/ideawatch/internal/ai"
)

func staticGen(out string, err error) ai.Generator {
	return ai.GeneratorFunc(func(_ context.Context, _ ai.Request) (string, error) { return out, err })
}

func TestExtract(t *testing.T) {
	// WHAT: A well-formed model response becomes a normalized concept record.
	// WHY: Negative keywords are compared case-insensitively downstream.
	gen := staticGen("```json\n"+`{
		"core_function": "tracks cat sleep",
		"key_features": "lightweight, bluetooth",
		"search_keywords": ["cat sleep collar", "cat tracker", "pet sleep monitor", "smart collar", "cat wearable"],
		"negative_keywords": ["Dog", "dog", " bark "],
		"category": "pet tech"
	}`+"\n```", nil)

	c, err := NewExtractor(gen).Extract(context.Background(), "A smart collar for cats", nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := strings.Join(c.NegativeKeywords, ","); got != "dog,bark" {
		t.Errorf("negatives = %q, want dog,bark", got)
	}
	if len(c.KeyFeatures) != 2 || c.KeyFeatures[1] != "bluetooth" {
		t.Errorf("features = %v", c.KeyFeatures)
	}
	if q := c.Query(); q != "cat sleep collar cat tracker pet sleep monitor" {
		t.Errorf("query = %q", q)
	}
}

func TestExtract_ImagePrompt(t *testing.T) {
	var req ai.Request
	gen := ai.GeneratorFunc(func(_ context.Context, r ai.Request) (string, error) {
		req = r
		return `{"search_keywords":["x"]}`, nil
	})
	img := &ai.Image{Data: []byte{1, 2}, MIMEType: "image/png"}
	if _, err := NewExtractor(gen).Extract(context.Background(), "lamp", img); err != nil {
		t.Fatal(err)
	}
	if req.Image != img || !strings.Contains(req.Prompt, "provided an image") || !req.JSON {
		t.Fatalf("request = %+v", req)
	}
}

func TestExtract_Errors(t *testing.T) {
	// WHAT: Model failure, malformed output and empty keywords all yield ExtractionError.
	// WHY: The scan aborts early and leaves the idea without concepts for a later retry.
	cases := []struct {
		name string
		gen  ai.Generator
		is   error
	}{
		{"model failure", staticGen("", errors.New("down")), nil},
		{"malformed", staticGen("sorry, I cannot", nil), ai.ErrMalformed},
		{"no keywords", staticGen(`{"core_function":"x","search_keywords":[]}`, nil), ErrNoKeywords},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewExtractor(tc.gen).Extract(context.Background(), "idea", nil)
			var ee *ExtractionError
			if !errors.As(err, &ee) {
				t.Fatalf("err = %v, want ExtractionError", err)
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("err = %v, want %v", err, tc.is)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	c := &Concepts{CoreFunction: "f", SearchKeywords: []string{"a", "b"}, NegativeKeywords: []string{"dog"}}
	s, err := c.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(s)
	if err != nil {
		t.Fatal(err)
	}
	if got.Query() != "a b" || got.NegativeKeywords[0] != "dog" {
		t.Fatalf("decoded = %+v", got)
	}
	if _, err := Decode("{"); err == nil {
		t.Fatal("expected decode error")
	}
}
