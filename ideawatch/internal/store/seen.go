// CLAUDE:SUMMARY Seen-listing ledger rows and the per-listing transaction that commits ledger and competitor together.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shahar42/competotor-agent/dbopen"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetSeen looks up a ledger entry.
func (s *Store) GetSeen(ctx context.Context, ideaID, fingerprint string) (*SeenRecord, error) {
	var r SeenRecord
	var relevant int
	err := s.DB.QueryRowContext(ctx,
		`SELECT idea_id, fingerprint, url, relevant, first_seen_at, last_seen_at
		FROM seen_listings WHERE idea_id = ? AND fingerprint = ?`, ideaID, fingerprint,
	).Scan(&r.IdeaID, &r.Fingerprint, &r.URL, &relevant, &r.FirstSeenAt, &r.LastSeenAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get seen: %w", err)
	}
	r.Relevant = relevant != 0
	return &r, nil
}

// TouchSeen refreshes last_seen_at on a repeat sighting.
func (s *Store) TouchSeen(ctx context.Context, ideaID, fingerprint string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE seen_listings SET last_seen_at = ? WHERE idea_id = ? AND fingerprint = ?`,
		s.nowMs(), ideaID, fingerprint)
	return err
}

// CountSeen returns the number of ledger entries for an idea.
func (s *Store) CountSeen(ctx context.Context, ideaID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_listings WHERE idea_id = ?`, ideaID).Scan(&n)
	return n, err
}

// CommitOutcome writes the ledger entry for a scored listing and, when comp
// is non-nil, the competitor row, in one transaction. It reports false and
// writes nothing when the listing is already in the ledger, so two
// overlapping scans of one idea commit a listing once.
func (s *Store) CommitOutcome(ctx context.Context, rec *SeenRecord, comp *Competitor) (bool, error) {
	var inserted bool
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		ok, err := s.insertSeen(ctx, tx, rec)
		if err != nil || !ok {
			inserted = false
			return err
		}
		inserted = true
		if comp == nil {
			return nil
		}
		return s.insertCompetitor(ctx, tx, comp)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *Store) insertSeen(ctx context.Context, ex execer, rec *SeenRecord) (bool, error) {
	now := s.nowMs()
	if rec.FirstSeenAt == 0 {
		rec.FirstSeenAt = now
	}
	rec.LastSeenAt = now
	res, err := ex.ExecContext(ctx,
		`INSERT INTO seen_listings (idea_id, fingerprint, url, relevant, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(idea_id, fingerprint) DO NOTHING`,
		rec.IdeaID, rec.Fingerprint, rec.URL, boolInt(rec.Relevant), rec.FirstSeenAt, rec.LastSeenAt)
	if err != nil {
		return false, fmt.Errorf("insert seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert seen: %w", err)
	}
	return n == 1, nil
}
