package store

import (
	"context"
	"database/sql"
	"fmt"
)

const runColumns = `id, idea_id, state, query, raw_count, filtered_count, ledger_hits,
	scored_count, new_count, notified, error, started_at, finished_at`

// InsertRun records the start of a scan.
func (s *Store) InsertRun(ctx context.Context, r *ScanRun) error {
	if r.StartedAt == 0 {
		r.StartedAt = s.nowMs()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO scan_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.IdeaID, r.State, r.Query, r.RawCount, r.FilteredCount, r.LedgerHits,
		r.ScoredCount, r.NewCount, boolInt(r.Notified), r.Error, r.StartedAt, r.FinishedAt)
	return err
}

// UpdateRun writes the mutable fields of a run.
func (s *Store) UpdateRun(ctx context.Context, r *ScanRun) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE scan_runs SET state=?, query=?, raw_count=?, filtered_count=?, ledger_hits=?,
		scored_count=?, new_count=?, notified=?, error=?, finished_at=?
		WHERE id=?`,
		r.State, r.Query, r.RawCount, r.FilteredCount, r.LedgerHits,
		r.ScoredCount, r.NewCount, boolInt(r.Notified), r.Error, r.FinishedAt, r.ID)
	return err
}

// FinishRun stamps finished_at and writes the run.
func (s *Store) FinishRun(ctx context.Context, r *ScanRun) error {
	now := s.nowMs()
	r.FinishedAt = &now
	return s.UpdateRun(ctx, r)
}

// ListRuns returns the most recent runs of an idea.
func (s *Store) ListRuns(ctx context.Context, ideaID string, limit int) ([]*ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+runColumns+` FROM scan_runs WHERE idea_id = ?
		ORDER BY started_at DESC, id DESC LIMIT ?`, ideaID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScanRun
	for rows.Next() {
		var r ScanRun
		var notified int
		if err := rows.Scan(&r.ID, &r.IdeaID, &r.State, &r.Query, &r.RawCount, &r.FilteredCount,
			&r.LedgerHits, &r.ScoredCount, &r.NewCount, &notified, &r.Error, &r.StartedAt,
			&r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Notified = notified != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*ScanRun, error) {
	var r ScanRun
	var notified int
	err := s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM scan_runs WHERE id = ?`, id).Scan(
		&r.ID, &r.IdeaID, &r.State, &r.Query, &r.RawCount, &r.FilteredCount,
		&r.LedgerHits, &r.ScoredCount, &r.NewCount, &notified, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.Notified = notified != 0
	return &r, nil
}
