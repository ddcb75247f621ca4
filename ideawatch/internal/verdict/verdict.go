// Package verdict produces the two optional summaries appended to a digest:
// a one-sentence go/pivot/stop recommendation and a gap analysis built from
// public complaints about the strongest competitor.
package verdict

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shahar42/competotor-agent/ideawatch/internal/ai"
	"github.com/shahar42/competotor-agent/ideawatch/internal/source"
)

const (
	verdictMatches    = 5
	complaintSnippets = 10
)

// ErrNoComplaints means the complaint search returned nothing to analyze.
var ErrNoComplaints = errors.New("verdict: no complaints found")

// Match is a scored competitor as seen by the analyzer.
type Match struct {
	Name  string
	Score int
}

// Analyzer runs the verdict and gap calls.
type Analyzer struct {
	gen        ai.Generator
	complaints source.Searcher
}

// NewAnalyzer creates an Analyzer. complaints is an unfiltered web search;
// nil disables gap analysis.
func NewAnalyzer(gen ai.Generator, complaints source.Searcher) *Analyzer {
	return &Analyzer{gen: gen, complaints: complaints}
}

// Verdict summarizes the top matches into one sentence starting with "Verdict:".
func (a *Analyzer) Verdict(ctx context.Context, idea string, top []Match) (string, error) {
	if len(top) > verdictMatches {
		top = top[:verdictMatches]
	}
	var b strings.Builder
	for _, m := range top {
		fmt.Fprintf(&b, "- %s (%d%% match)\n", m.Name, m.Score)
	}
	if len(top) == 0 {
		b.WriteString("- none\n")
	}
	prompt := fmt.Sprintf(`Act as a brutal startup advisor. Based on the user's idea and the competitors found, give a 1-sentence verdict.

User Idea: %s

Found Competitors:
%s
Task:
- If high similarity (>80%%) matches exist: Recommend PIVOT or STOP.
- If only low similarity exists: Recommend PROCEED but CAUTIOUSLY.
- If no real competitors: Recommend GO FOR IT.

Output ONE sentence only. Start with "Verdict:".
`, idea, b.String())
	out, err := a.gen.Generate(ctx, ai.Request{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("verdict: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ComplaintQuery is the adversarial search issued for a competitor.
func ComplaintQuery(competitor string) string {
	return fmt.Sprintf(`"%s" complaints OR problems OR "stopped working" review`, competitor)
}

// Gap searches public complaints about competitor and maps them onto the
// idea's differentiation.
func (a *Analyzer) Gap(ctx context.Context, idea, competitor string) (string, error) {
	if a.complaints == nil {
		return "", ErrNoComplaints
	}
	results, err := a.complaints.Search(ctx, ComplaintQuery(competitor))
	if err != nil {
		return "", fmt.Errorf("verdict: complaint search: %w", err)
	}
	var snippets []string
	for _, r := range results {
		text := strings.TrimSpace(r.Description)
		if text == "" {
			text = strings.TrimSpace(r.Name)
		}
		if text != "" {
			snippets = append(snippets, text)
		}
		if len(snippets) == complaintSnippets {
			break
		}
	}
	if len(snippets) == 0 {
		return "", ErrNoComplaints
	}

	prompt := fmt.Sprintf(`Market Gap Analysis:

User's Idea: %s
Competitor Product: %s

Public Complaints Found about Competitor:
- %s

Task:
1. Identify the top 2-3 recurring problems/pain points from the complaints.
2. Explain how the User's Idea solves (or fails to solve) these specific problems.
3. Provide a "Marketing Hook" based on this gap.

Output plain text, max 3 sentences.
Format:
"Competitors suffer from [Problem]. Your idea [Solves/Doesn't Solve] this by [Feature]. Opportunity: [Marketing Hook]."
`, idea, competitor, strings.Join(snippets, "\n- "))
	out, err := a.gen.Generate(ctx, ai.Request{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("verdict: gap: %w", err)
	}
	return strings.Trim(strings.TrimSpace(out), `"`), nil
}
