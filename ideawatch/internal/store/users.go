package store

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureUser returns the user with the given email, creating it with id
// when absent. An existing user keeps its original id and active flag.
func (s *Store) EnsureUser(ctx context.Context, id, email string) (*User, error) {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, active, created_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(email) DO NOTHING`, id, email, s.nowMs())
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return s.GetUserByEmail(ctx, email)
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return scanUser(s.DB.QueryRowContext(ctx,
		`SELECT id, email, active, created_at FROM users WHERE id = ?`, id))
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.DB.QueryRowContext(ctx,
		`SELECT id, email, active, created_at FROM users WHERE email = ?`, email))
}

// SetUserActive flips the active flag. Returns false when no user matches.
func (s *Store) SetUserActive(ctx context.Context, email string, active bool) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE users SET active = ? WHERE email = ?`, boolInt(active), email)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var active int
	if err := row.Scan(&u.ID, &u.Email, &active, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Active = active != 0
	return &u, nil
}
