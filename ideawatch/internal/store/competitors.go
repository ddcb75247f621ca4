// CLAUDE:SUMMARY Competitor insert, score-ordered listing, user feedback, and the per-user Results query.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

const competitorColumns = `id, idea_id, product_name, source, url, price, score,
	reasoning, advantage, feedback, feedback_at, discovered_at`

func (s *Store) insertCompetitor(ctx context.Context, ex execer, c *Competitor) error {
	if c.DiscoveredAt == 0 {
		c.DiscoveredAt = s.nowMs()
	}
	var feedback *int
	if c.Feedback != nil {
		v := boolInt(*c.Feedback)
		feedback = &v
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO competitors (`+competitorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.IdeaID, c.ProductName, c.Source, c.URL, c.Price, c.Score,
		c.Reasoning, c.Advantage, feedback, c.FeedbackAt, c.DiscoveredAt)
	if err != nil {
		return fmt.Errorf("insert competitor: %w", err)
	}
	return nil
}

// GetCompetitor retrieves a competitor by ID.
func (s *Store) GetCompetitor(ctx context.Context, id string) (*Competitor, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+competitorColumns+` FROM competitors WHERE id = ?`, id)
	c, err := scanCompetitor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListCompetitors returns an idea's competitors by score descending.
func (s *Store) ListCompetitors(ctx context.Context, ideaID string) ([]*Competitor, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+competitorColumns+` FROM competitors WHERE idea_id = ?
		ORDER BY score DESC, discovered_at ASC, url ASC`, ideaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Competitor
	for rows.Next() {
		c, err := scanCompetitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan competitor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetFeedback records the user's relevance verdict on a competitor.
// Re-sending the same verdict leaves feedback_at unchanged. Returns false
// when the competitor does not exist.
func (s *Store) SetFeedback(ctx context.Context, id string, relevant bool) (bool, error) {
	v := boolInt(relevant)
	res, err := s.DB.ExecContext(ctx,
		`UPDATE competitors SET
			feedback_at = CASE WHEN feedback = ? THEN feedback_at ELSE ? END,
			feedback = ?
		WHERE id = ?`, v, s.nowMs(), v, id)
	if err != nil {
		return false, fmt.Errorf("set feedback: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Results returns every idea of the user with its competitors, newest idea
// first, competitors by score descending.
func (s *Store) Results(ctx context.Context, userID string) ([]*IdeaResults, error) {
	ideas, err := s.ListIdeasByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*IdeaResults, 0, len(ideas))
	for _, idea := range ideas {
		comps, err := s.ListCompetitors(ctx, idea.ID)
		if err != nil {
			return nil, err
		}
		if comps == nil {
			comps = []*Competitor{}
		}
		out = append(out, &IdeaResults{Idea: idea, Competitors: comps})
	}
	return out, nil
}

func scanCompetitor(row rowScanner) (*Competitor, error) {
	var c Competitor
	var feedback *int
	err := row.Scan(&c.ID, &c.IdeaID, &c.ProductName, &c.Source, &c.URL, &c.Price, &c.Score,
		&c.Reasoning, &c.Advantage, &feedback, &c.FeedbackAt, &c.DiscoveredAt)
	if err != nil {
		return nil, err
	}
	if feedback != nil {
		b := *feedback != 0
		c.Feedback = &b
	}
	return &c, nil
}
