// Package scan runs the competitor scan for one idea: concepts, retrieval,
// noise filtering, ledger dedup, scoring, persistence and notification.
//
// Each stage commits its own durable writes. A failure after concepts are
// stored leaves them in place; the next run reuses them.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shahar42/competotor-agent/idgen"
	"github.com/shahar42/competotor-agent/ideawatch/internal/ai"
	"github.com/shahar42/competotor-agent/ideawatch/internal/concept"
	"github.com/shahar42/competotor-agent/ideawatch/internal/ledger"
	"github.com/shahar42/competotor-agent/ideawatch/internal/metrics"
	"github.com/shahar42/competotor-agent/ideawatch/internal/scoring"
	"github.com/shahar42/competotor-agent/ideawatch/internal/source"
	"github.com/shahar42/competotor-agent/ideawatch/internal/store"
	"github.com/shahar42/competotor-agent/ideawatch/internal/verdict"
	"github.com/shahar42/competotor-agent/notify"
)

// Scan states, in pipeline order.
const (
	StateExtracting = "extracting"
	StateRetrieving = "retrieving"
	StateFiltering  = "filtering"
	StateScoring    = "scoring"
	StatePersisting = "persisting"
	StateNotifying  = "notifying"
	StateDone       = "done"
	StateFailed     = "failed"
)

var (
	// ErrIdeaNotFound is returned when the idea does not exist.
	ErrIdeaNotFound = errors.New("scan: idea not found")
	// ErrNoKeywords is returned when the concept record yields an empty query.
	ErrNoKeywords = errors.New("scan: no search keywords")
)

// Config holds the dependencies and limits of a Runner.
type Config struct {
	Store     *store.Store
	Extractor *concept.Extractor
	Sources   *source.Registry
	Scorer    *scoring.Scorer

	// Analyzer is optional. Nil skips verdict and gap analysis.
	Analyzer *verdict.Analyzer
	// Notifier is optional. Nil skips notification.
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	NewID    idgen.Generator

	MaxCandidates  int           // listings scored per run (default 15)
	MaxDigestItems int           // competitors per digest (default 5)
	ScoreWorkers   int           // parallel scoring calls (default 3)
	SourceTimeout  time.Duration // per-source deadline (default 30s)
}

func (c *Config) defaults() {
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 15
	}
	if c.MaxDigestItems <= 0 {
		c.MaxDigestItems = 5
	}
	if c.ScoreWorkers <= 0 {
		c.ScoreWorkers = 3
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NewID == nil {
		c.NewID = idgen.Default
	}
}

// Runner executes scans.
type Runner struct {
	cfg    Config
	ledger *ledger.Ledger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	cfg.defaults()
	return &Runner{cfg: cfg, ledger: ledger.New(cfg.Store)}
}

// Report summarizes one scan.
type Report struct {
	RunID       string              `json:"run_id"`
	IdeaID      string              `json:"idea_id"`
	State       string              `json:"state"`
	Query       string              `json:"query"`
	Raw         int                 `json:"raw"`
	Filtered    int                 `json:"filtered"`
	LedgerHits  int                 `json:"ledger_hits"`
	Scored      int                 `json:"scored"`
	Competitors []*store.Competitor `json:"competitors"`
	Verdict     string              `json:"verdict,omitempty"`
	Gap         string              `json:"gap,omitempty"`
	Notified    bool                `json:"notified"`
}

// scored is one listing with its successful judgement.
type scored struct {
	listing source.Listing
	result  *scoring.Result
}

// Run scans the idea once. Source, scoring, analysis and notification
// failures are logged and absorbed; only extraction, keyword and store
// failures abort the run.
func (r *Runner) Run(ctx context.Context, ideaID string) (*Report, error) {
	started := time.Now()
	idea, err := r.cfg.Store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, fmt.Errorf("scan: load idea: %w", err)
	}
	if idea == nil {
		return nil, ErrIdeaNotFound
	}
	log := r.cfg.Logger.With("idea_id", idea.ID)

	run := &store.ScanRun{ID: r.cfg.NewID(), IdeaID: idea.ID, State: StateExtracting}
	if err := r.cfg.Store.InsertRun(ctx, run); err != nil {
		return nil, fmt.Errorf("scan: insert run: %w", err)
	}
	log = log.With("run_id", run.ID)
	rep := &Report{RunID: run.ID, IdeaID: idea.ID}

	fail := func(err error) (*Report, error) {
		run.State = StateFailed
		run.Error = err.Error()
		rep.State = StateFailed
		if ferr := r.cfg.Store.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
			log.Warn("scan: finish run failed", "error", ferr)
		}
		r.cfg.Metrics.ScanFinished(StateFailed, time.Since(started))
		log.Error("scan: failed", "state", rep.State, "error", err)
		return rep, err
	}

	// Extracting.
	c, err := r.concepts(ctx, idea, log)
	if err != nil {
		return fail(err)
	}
	query := c.Query()
	if query == "" {
		return fail(ErrNoKeywords)
	}
	run.Query, rep.Query = query, query

	// Retrieving.
	r.advance(ctx, run, StateRetrieving, log)
	raw := r.retrieve(ctx, query, log)
	run.RawCount, rep.Raw = len(raw), len(raw)
	r.cfg.Metrics.AddListings(metrics.StageRaw, len(raw))

	// Filtering.
	r.advance(ctx, run, StateFiltering, log)
	candidates, hits, err := r.candidates(ctx, idea.ID, raw, c.NegativeKeywords)
	if err != nil {
		return fail(err)
	}
	run.FilteredCount, rep.Filtered = len(candidates), len(candidates)
	run.LedgerHits, rep.LedgerHits = hits, hits
	r.cfg.Metrics.AddListings(metrics.StageFiltered, len(candidates))
	r.cfg.Metrics.AddListings(metrics.StageLedgerHit, hits)

	// Scoring.
	r.advance(ctx, run, StateScoring, log)
	results := r.score(ctx, idea.Description, candidates, log)
	run.ScoredCount, rep.Scored = len(results), len(results)
	r.cfg.Metrics.AddListings(metrics.StageScored, len(results))

	// Persisting.
	r.advance(ctx, run, StatePersisting, log)
	comps, err := r.persist(ctx, idea.ID, results)
	if err != nil {
		return fail(err)
	}
	if err := r.cfg.Store.MarkChecked(ctx, idea.ID); err != nil {
		return fail(fmt.Errorf("scan: mark checked: %w", err))
	}
	run.NewCount = len(comps)
	rep.Competitors = comps
	r.cfg.Metrics.AddListings(metrics.StageAccepted, len(comps))

	// Notifying.
	r.advance(ctx, run, StateNotifying, log)
	rep.Verdict, rep.Gap = r.analyze(ctx, idea.Description, comps, log)
	rep.Notified = r.notify(ctx, idea, digestTitle(c), comps, rep, log)
	run.Notified = rep.Notified

	run.State, rep.State = StateDone, StateDone
	if err := r.cfg.Store.FinishRun(ctx, run); err != nil {
		log.Warn("scan: finish run failed", "error", err)
	}
	r.cfg.Metrics.ScanFinished(StateDone, time.Since(started))
	log.Info("scan: done",
		"query", query, "raw", rep.Raw, "filtered", rep.Filtered,
		"ledger_hits", rep.LedgerHits, "scored", rep.Scored,
		"new", len(comps), "notified", rep.Notified,
		"duration", time.Since(started))
	return rep, nil
}

func (r *Runner) advance(ctx context.Context, run *store.ScanRun, state string, log *slog.Logger) {
	run.State = state
	if err := r.cfg.Store.UpdateRun(ctx, run); err != nil {
		log.Warn("scan: update run failed", "state", state, "error", err)
	}
	log.Debug("scan: state", "state", state)
}

// concepts returns the cached record or extracts and stores a new one.
func (r *Runner) concepts(ctx context.Context, idea *store.Idea, log *slog.Logger) (*concept.Concepts, error) {
	if idea.ConceptsJSON != nil {
		c, err := concept.Decode(*idea.ConceptsJSON)
		if err == nil {
			return c, nil
		}
		log.Warn("scan: cached concepts unreadable, re-extracting", "error", err)
		if err := r.cfg.Store.ClearConcepts(ctx, idea.ID); err != nil {
			return nil, fmt.Errorf("scan: clear concepts: %w", err)
		}
	}

	var img *ai.Image
	if len(idea.Image) > 0 {
		img = &ai.Image{Data: idea.Image, MIMEType: idea.ImageMIME}
	}
	c, err := r.cfg.Extractor.Extract(ctx, idea.Description, img)
	if err != nil {
		return nil, err
	}
	encoded, err := c.Encode()
	if err != nil {
		return nil, fmt.Errorf("scan: encode concepts: %w", err)
	}
	wrote, err := r.cfg.Store.SetConcepts(ctx, idea.ID, encoded)
	if err != nil {
		return nil, fmt.Errorf("scan: store concepts: %w", err)
	}
	if !wrote {
		// A concurrent run stored first; use its record.
		fresh, err := r.cfg.Store.GetIdea(ctx, idea.ID)
		if err == nil && fresh != nil && fresh.ConceptsJSON != nil {
			if stored, derr := concept.Decode(*fresh.ConceptsJSON); derr == nil {
				return stored, nil
			}
		}
	}
	log.Info("scan: concepts extracted", "keywords", c.SearchKeywords, "negative", c.NegativeKeywords)
	return c, nil
}

// persist writes each scored listing's ledger entry, plus its competitor
// row when accepted, in score order. Competitors are returned best first.
func (r *Runner) persist(ctx context.Context, ideaID string, results []scored) ([]*store.Competitor, error) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].result.Score != results[j].result.Score {
			return results[i].result.Score > results[j].result.Score
		}
		return results[i].listing.URL < results[j].listing.URL
	})

	var comps []*store.Competitor
	for _, s := range results {
		relevant := r.cfg.Scorer.Accept(s.result.Score)
		var comp *store.Competitor
		if relevant {
			comp = &store.Competitor{
				ID:          r.cfg.NewID(),
				IdeaID:      ideaID,
				ProductName: s.listing.Name,
				Source:      s.listing.Source,
				URL:         s.listing.URL,
				Price:       s.listing.Price,
				Score:       s.result.Score,
				Reasoning:   s.result.Reasoning,
				Advantage:   s.result.Advantage,
			}
		}
		recorded, err := r.ledger.RecordWithCompetitor(ctx, ideaID, s.listing.URL, relevant, comp)
		if err != nil {
			return comps, fmt.Errorf("scan: persist %s: %w", s.listing.URL, err)
		}
		if !recorded {
			r.cfg.Logger.Info("scan: listing recorded by a concurrent run", "idea_id", ideaID, "url", s.listing.URL)
			continue
		}
		if comp != nil {
			comps = append(comps, comp)
		}
	}
	return comps, nil
}
