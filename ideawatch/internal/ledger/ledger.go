// Package ledger is the persistent set of listings already evaluated for an
// idea. A hit skips scoring and alerting for that listing permanently; there
// is no expiry.
package ledger

import (
	"context"

	"github.com/shahar42/competotor-agent/ideawatch/internal/store"
)

// Ledger records (idea, url fingerprint) pairs.
type Ledger struct {
	store *store.Store
}

// New creates a Ledger over the store.
func New(s *store.Store) *Ledger {
	return &Ledger{store: s}
}

// HasSeen reports whether the listing was already evaluated for the idea.
func (l *Ledger) HasSeen(ctx context.Context, ideaID, rawURL string) (bool, error) {
	rec, err := l.store.GetSeen(ctx, ideaID, Fingerprint(rawURL))
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Touch refreshes last-seen on a repeat sighting.
func (l *Ledger) Touch(ctx context.Context, ideaID, rawURL string) error {
	return l.store.TouchSeen(ctx, ideaID, Fingerprint(rawURL))
}

// RecordWithCompetitor records the outcome and, when comp is non-nil, the
// competitor row in one transaction. It reports false when another run
// recorded the listing first; nothing is written then.
func (l *Ledger) RecordWithCompetitor(ctx context.Context, ideaID, rawURL string, relevant bool, comp *store.Competitor) (bool, error) {
	return l.store.CommitOutcome(ctx, Entry(ideaID, rawURL, relevant), comp)
}

// Entry builds the ledger row for a listing.
func Entry(ideaID, rawURL string, relevant bool) *store.SeenRecord {
	return &store.SeenRecord{
		IdeaID:      ideaID,
		Fingerprint: Fingerprint(rawURL),
		URL:         rawURL,
		Relevant:    relevant,
	}
}
