// Package store provides the data access layer for ideawatch.
//
// All timestamps are Unix milliseconds. Getters return (nil, nil) when the
// row does not exist.
package store

import (
	"database/sql"
	"time"
)

// Store wraps the ideawatch database.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) nowMs() int64 { return s.now().UnixMilli() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
