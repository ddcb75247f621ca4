// CLAUDE:SUMMARY Idea CRUD, concept caching, and the DueIdeas/ExpireMonitoring monitoring queries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const ideaColumns = `id, user_id, description, image, image_mime, concepts_json,
	monitoring, monitor_until, last_checked_at, created_at`

// InsertIdea adds a new idea.
func (s *Store) InsertIdea(ctx context.Context, idea *Idea) error {
	if idea.CreatedAt == 0 {
		idea.CreatedAt = s.nowMs()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO ideas (`+ideaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idea.ID, idea.UserID, idea.Description, idea.Image, idea.ImageMIME, idea.ConceptsJSON,
		boolInt(idea.Monitoring), idea.MonitorUntil, idea.LastCheckedAt, idea.CreatedAt,
	)
	return err
}

// GetIdea retrieves an idea by ID.
func (s *Store) GetIdea(ctx context.Context, id string) (*Idea, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id = ?`, id)
	idea, err := scanIdea(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return idea, err
}

// ListIdeasByUser returns the user's ideas, newest first.
func (s *Store) ListIdeasByUser(ctx context.Context, userID string) ([]*Idea, error) {
	return s.queryIdeas(ctx,
		`SELECT `+ideaColumns+` FROM ideas WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// SetConcepts stores the extracted concept record. It only writes when no
// concepts are present, so a concurrent extraction cannot overwrite the
// first one. Returns false when concepts were already set.
func (s *Store) SetConcepts(ctx context.Context, ideaID, conceptsJSON string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE ideas SET concepts_json = ? WHERE id = ? AND concepts_json IS NULL`,
		conceptsJSON, ideaID)
	if err != nil {
		return false, fmt.Errorf("set concepts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ClearConcepts invalidates the concept record so the next scan re-extracts.
func (s *Store) ClearConcepts(ctx context.Context, ideaID string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE ideas SET concepts_json = NULL WHERE id = ?`, ideaID)
	return err
}

// MarkChecked records that a scan of the idea completed.
func (s *Store) MarkChecked(ctx context.Context, ideaID string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE ideas SET last_checked_at = ? WHERE id = ?`, s.nowMs(), ideaID)
	return err
}

// SetMonitoring switches monitoring on until the given time, or off when
// until is nil.
func (s *Store) SetMonitoring(ctx context.Context, ideaID string, until *int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE ideas SET monitoring = ?, monitor_until = ? WHERE id = ?`,
		boolInt(until != nil), until, ideaID)
	return err
}

// DueIdeas returns monitored ideas of active users whose window is still
// open and whose last check is older than interval (or that were never
// checked). Oldest check first.
func (s *Store) DueIdeas(ctx context.Context, interval time.Duration) ([]*Idea, error) {
	now := s.nowMs()
	cutoff := now - interval.Milliseconds()
	return s.queryIdeas(ctx,
		`SELECT i.id, i.user_id, i.description, i.image, i.image_mime, i.concepts_json,
			i.monitoring, i.monitor_until, i.last_checked_at, i.created_at
		FROM ideas i JOIN users u ON u.id = i.user_id
		WHERE i.monitoring = 1 AND u.active = 1
		  AND (i.monitor_until IS NULL OR i.monitor_until > ?)
		  AND (i.last_checked_at IS NULL OR i.last_checked_at <= ?)
		ORDER BY COALESCE(i.last_checked_at, 0) ASC, i.id`,
		now, cutoff)
}

// ExpireMonitoring switches monitoring off for ideas whose window has
// closed. Returns the number of ideas affected.
func (s *Store) ExpireMonitoring(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE ideas SET monitoring = 0
		WHERE monitoring = 1 AND monitor_until IS NOT NULL AND monitor_until <= ?`, s.nowMs())
	if err != nil {
		return 0, fmt.Errorf("expire monitoring: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) queryIdeas(ctx context.Context, query string, args ...any) ([]*Idea, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ideas []*Idea
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdea(row rowScanner) (*Idea, error) {
	var idea Idea
	var monitoring int
	err := row.Scan(&idea.ID, &idea.UserID, &idea.Description, &idea.Image, &idea.ImageMIME,
		&idea.ConceptsJSON, &monitoring, &idea.MonitorUntil, &idea.LastCheckedAt, &idea.CreatedAt)
	if err != nil {
		return nil, err
	}
	idea.Monitoring = monitoring != 0
	return &idea, nil
}
