package verdict

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shahar42/competotor-agent/ideawatch/internal/ai"
	"github.com/shahar42/competotor-agent/ideawatch/internal/source"
)

func TestVerdict_TopFive(t *testing.T) {
	var prompt string
	gen := ai.GeneratorFunc(func(_ context.Context, req ai.Request) (string, error) {
		prompt = req.Prompt
		return "  Verdict: PIVOT.  ", nil
	})
	var top []Match
	for i := 0; i < 7; i++ {
		top = append(top, Match{Name: string(rune('A' + i)), Score: 90 - i})
	}
	out, err := NewAnalyzer(gen, nil).Verdict(context.Background(), "cat collar", top)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Verdict: PIVOT." {
		t.Fatalf("out = %q", out)
	}
	if !strings.Contains(prompt, "- E (86% match)") || strings.Contains(prompt, "- F (") {
		t.Fatalf("prompt should list exactly five matches:\n%s", prompt)
	}
}

func TestGap(t *testing.T) {
	// WHAT: Complaint snippets about the top competitor feed the gap prompt.
	// WHY: The gap is an adversarial read of the strongest rival.
	var query string
	search := source.SearchFunc(func(_ context.Context, q string) ([]source.Listing, error) {
		query = q
		return []source.Listing{
			{Name: "r1", Description: "battery dies in a day"},
			{Name: "strap breaks"},
			{},
		}, nil
	})
	var prompt string
	gen := ai.GeneratorFunc(func(_ context.Context, req ai.Request) (string, error) {
		prompt = req.Prompt
		return `"Competitors suffer from battery life. Opportunity: week-long battery."`, nil
	})

	out, err := NewAnalyzer(gen, search).Gap(context.Background(), "cat collar", "PetPace")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(query, `"PetPace"`) {
		t.Fatalf("query = %q", query)
	}
	if !strings.Contains(prompt, "- battery dies in a day\n- strap breaks") {
		t.Fatalf("prompt = %s", prompt)
	}
	if strings.HasPrefix(out, `"`) {
		t.Fatalf("quotes not trimmed: %q", out)
	}
}

func TestGap_NoComplaints(t *testing.T) {
	empty := source.SearchFunc(func(context.Context, string) ([]source.Listing, error) { return nil, nil })
	gen := ai.GeneratorFunc(func(context.Context, ai.Request) (string, error) {
		t.Fatal("model should not be called")
		return "", nil
	})
	if _, err := NewAnalyzer(gen, empty).Gap(context.Background(), "i", "c"); !errors.Is(err, ErrNoComplaints) {
		t.Fatalf("err = %v", err)
	}
	if _, err := NewAnalyzer(gen, nil).Gap(context.Background(), "i", "c"); !errors.Is(err, ErrNoComplaints) {
		t.Fatalf("nil searcher err = %v", err)
	}
}
