package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shahar42/competotor-agent/ideawatch/internal/concept"
	"github.com/shahar42/competotor-agent/ideawatch/internal/ledger"
	"github.com/shahar42/competotor-agent/ideawatch/internal/noise"
	"github.com/shahar42/competotor-agent/ideawatch/internal/source"
	"github.com/shahar42/competotor-agent/ideawatch/internal/store"
	"github.com/shahar42/competotor-agent/ideawatch/internal/verdict"
	"github.com/shahar42/competotor-agent/notify"
)

// retrieve queries every registered source concurrently and merges the
// results. A failed or timed-out source contributes nothing.
func (r *Runner) retrieve(ctx context.Context, query string, log *slog.Logger) []source.Listing {
	entries := r.cfg.Sources.Sources()
	batches := make([][]source.Listing, len(entries))

	var g errgroup.Group
	for i, e := range entries {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, r.cfg.SourceTimeout)
			defer cancel()
			listings, err := e.Searcher.Search(sctx, query)
			if err != nil {
				var se *source.SourceError
				if !errors.As(err, &se) {
					err = &source.SourceError{Source: e.Name, Err: err}
				}
				log.Warn("scan: source failed", "source", e.Name, "error", err)
				r.cfg.Metrics.SourceFailed(e.Name)
				return nil
			}
			batches[i] = source.Clean(listings, e.Name)
			log.Debug("scan: source done", "source", e.Name, "listings", len(batches[i]))
			return nil
		})
	}
	g.Wait()

	var all []source.Listing
	for _, b := range batches {
		all = append(all, b...)
	}
	return all
}

// candidates applies the noise filter, drops in-batch duplicates and ledger
// hits, and caps the result. Ledger hits get their last-seen refreshed.
func (r *Runner) candidates(ctx context.Context, ideaID string, raw []source.Listing, negatives []string) ([]source.Listing, int, error) {
	filtered := noise.Filter(raw, negatives)

	seen := make(map[string]bool, len(filtered))
	var out []source.Listing
	hits := 0
	for _, l := range filtered {
		if len(out) >= r.cfg.MaxCandidates {
			break
		}
		fp := ledger.Fingerprint(l.URL)
		if seen[fp] {
			continue
		}
		seen[fp] = true

		ok, err := r.ledger.HasSeen(ctx, ideaID, l.URL)
		if err != nil {
			return nil, hits, fmt.Errorf("scan: ledger lookup: %w", err)
		}
		if ok {
			hits++
			if err := r.ledger.Touch(ctx, ideaID, l.URL); err != nil {
				return nil, hits, fmt.Errorf("scan: ledger touch: %w", err)
			}
			continue
		}
		out = append(out, l)
	}
	return out, hits, nil
}

// score runs the scorer over candidates with at most ScoreWorkers calls in
// flight. Failed listings are dropped and left out of the ledger so the
// next run retries them. The returned order is unspecified.
func (r *Runner) score(ctx context.Context, idea string, candidates []source.Listing, log *slog.Logger) []scored {
	var (
		mu  sync.Mutex
		out []scored
	)
	var g errgroup.Group
	g.SetLimit(r.cfg.ScoreWorkers)
	for _, l := range candidates {
		g.Go(func() error {
			res, err := r.cfg.Scorer.Score(ctx, idea, l)
			if err != nil {
				log.Warn("scan: scoring failed, listing dropped", "url", l.URL, "source", l.Source, "error", err)
				return nil
			}
			mu.Lock()
			out = append(out, scored{listing: l, result: res})
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return out
}

// analyze runs the optional verdict and gap calls. Either may be empty.
func (r *Runner) analyze(ctx context.Context, idea string, comps []*store.Competitor, log *slog.Logger) (string, string) {
	if r.cfg.Analyzer == nil || len(comps) == 0 {
		return "", ""
	}
	var wg sync.WaitGroup
	var verdictText, gapText string

	matches := make([]verdict.Match, 0, len(comps))
	for _, c := range comps {
		matches = append(matches, verdict.Match{Name: c.ProductName, Score: c.Score})
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		v, err := r.cfg.Analyzer.Verdict(ctx, idea, matches)
		if err != nil {
			log.Warn("scan: verdict failed", "error", err)
			return
		}
		verdictText = v
	}()
	go func() {
		defer wg.Done()
		g, err := r.cfg.Analyzer.Gap(ctx, idea, comps[0].ProductName)
		if err != nil {
			log.Warn("scan: gap analysis failed", "competitor", comps[0].ProductName, "error", err)
			return
		}
		gapText = g
	}()
	wg.Wait()
	return verdictText, gapText
}

// digestTitle names the idea in the digest by its extracted core function.
func digestTitle(c *concept.Concepts) string {
	if c == nil || c.CoreFunction == "" {
		return "Your Idea"
	}
	return c.CoreFunction
}

// notify applies the delivery policy and hands the digest over. It never
// fails the scan.
func (r *Runner) notify(ctx context.Context, idea *store.Idea, title string, comps []*store.Competitor, rep *Report, log *slog.Logger) bool {
	if r.cfg.Notifier == nil {
		return false
	}
	if len(comps) == 0 && !idea.Monitoring {
		return false
	}
	user, err := r.cfg.Store.GetUser(ctx, idea.UserID)
	if err != nil {
		log.Warn("scan: load user failed, notification skipped", "error", err)
		return false
	}
	if user == nil || !user.Active {
		log.Info("scan: user inactive, notification skipped")
		return false
	}

	d := notify.Digest{
		To:        user.Email,
		IdeaID:    idea.ID,
		IdeaTitle: title,
		Verdict:   rep.Verdict,
		Gap:       rep.Gap,
		NoMatches: len(comps) == 0,
	}
	top := comps
	if len(top) > r.cfg.MaxDigestItems {
		top = top[:r.cfg.MaxDigestItems]
	}
	for _, c := range top {
		d.Items = append(d.Items, notify.Item{
			CompetitorID: c.ID,
			Name:         c.ProductName,
			URL:          c.URL,
			Source:       c.Source,
			Price:        c.Price,
			Score:        c.Score,
			Reasoning:    c.Reasoning,
			Advantage:    c.Advantage,
		})
	}
	if err := r.cfg.Notifier.Notify(ctx, d); err != nil {
		var ne *notify.NotificationError
		if !errors.As(err, &ne) {
			err = &notify.NotificationError{To: user.Email, Err: err}
		}
		log.Warn("scan: notification failed", "error", err)
		r.cfg.Metrics.Notified(false)
		return false
	}
	r.cfg.Metrics.Notified(true)
	return true
}
