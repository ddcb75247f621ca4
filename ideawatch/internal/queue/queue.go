// Package queue is the durable executor for scan jobs: a visibility-timeout
// queue on SQLite.
//
// A claimed job is hidden for the visibility window. A worker that finishes
// acks it; a worker that fails releases it with a delay; a worker that
// crashes simply lets the window lapse and the job reappears. At most one
// job per idea is pending at a time.
//
// Schema (created by EnsureTable):
//
//	CREATE TABLE IF NOT EXISTS scan_jobs (
//	    idea_id     TEXT PRIMARY KEY,
//	    reason      TEXT NOT NULL DEFAULT '',
//	    visible_at  INTEGER NOT NULL DEFAULT 0,  -- ms since epoch
//	    created_at  INTEGER NOT NULL,
//	    attempts    INTEGER NOT NULL DEFAULT 0,
//	    last_error  TEXT NOT NULL DEFAULT ''
//	);
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job reasons.
const (
	ReasonSubmit    = "submit"
	ReasonMonitor   = "monitor"
	ReasonRescan    = "rescan"
	ReasonReextract = "reextract"
)

// Job is one pending scan.
type Job struct {
	IdeaID    string
	Reason    string
	VisibleAt time.Time
	CreatedAt time.Time
	Attempts  int
	LastError string
}

// Options configures the queue.
type Options struct {
	// Visibility is how long a claimed job stays hidden. Default: 15m.
	Visibility time.Duration
	// PollInterval is the delay between claim rounds. Default: 1s.
	PollInterval time.Duration
	// MaxAttempts is the number of deliveries before a job is dropped. Default: 3.
	MaxAttempts int
	// RetryDelay is multiplied by the attempt count on failure. Default: 1m.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

func (o *Options) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 15 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Minute
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Queue is the scan job queue.
type Queue struct {
	db   *sql.DB
	opts Options
	now  func() time.Time
	wake chan struct{}
}

// New creates a queue handle. Call EnsureTable once at startup.
func New(db *sql.DB, opts Options) *Queue {
	opts.defaults()
	return &Queue{db: db, opts: opts, now: time.Now, wake: make(chan struct{}, 1)}
}

// SetClock overrides the time source. Tests only.
func (q *Queue) SetClock(now func() time.Time) { q.now = now }

// EnsureTable creates the scan_jobs table and index.
func (q *Queue) EnsureTable(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scan_jobs (
			idea_id     TEXT PRIMARY KEY,
			reason      TEXT NOT NULL DEFAULT '',
			visible_at  INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			attempts    INTEGER NOT NULL DEFAULT 0,
			last_error  TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_scan_jobs_visible ON scan_jobs (visible_at);
	`)
	if err != nil {
		return fmt.Errorf("queue: ensure table: %w", err)
	}
	return nil
}

// Enqueue adds a visible job for the idea. It reports false when a job for
// the idea is already pending or running.
func (q *Queue) Enqueue(ctx context.Context, ideaID, reason string) (bool, error) {
	if ideaID == "" {
		return false, errors.New("queue: idea id required")
	}
	now := q.now().UnixMilli()
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO scan_jobs (idea_id, reason, visible_at, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(idea_id) DO NOTHING`,
		ideaID, reason, now, now)
	if err != nil {
		return false, fmt.Errorf("queue: enqueue: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return n > 0, nil
}

// Claim hides the oldest visible job and returns it, or nil, nil.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	now := q.now()
	row := q.db.QueryRowContext(ctx, `
		UPDATE scan_jobs
		SET visible_at = ?, attempts = attempts + 1
		WHERE idea_id = (
			SELECT idea_id FROM scan_jobs
			WHERE visible_at <= ?
			ORDER BY visible_at ASC, created_at ASC
			LIMIT 1
		)
		RETURNING idea_id, reason, visible_at, created_at, attempts, last_error`,
		now.Add(q.opts.Visibility).UnixMilli(), now.UnixMilli())

	var j Job
	var visAt, creAt int64
	err := row.Scan(&j.IdeaID, &j.Reason, &visAt, &creAt, &j.Attempts, &j.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: claim: %w", err)
	}
	j.VisibleAt = time.UnixMilli(visAt)
	j.CreatedAt = time.UnixMilli(creAt)
	return &j, nil
}

// Ack removes a finished job.
func (q *Queue) Ack(ctx context.Context, ideaID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM scan_jobs WHERE idea_id = ?`, ideaID)
	return err
}

// Release makes a failed job visible again after RetryDelay*attempts.
func (q *Queue) Release(ctx context.Context, j *Job, cause error) error {
	delay := q.opts.RetryDelay * time.Duration(j.Attempts)
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE scan_jobs SET visible_at = ?, last_error = ? WHERE idea_id = ?`,
		q.now().Add(delay).UnixMilli(), msg, j.IdeaID)
	return err
}

// Len returns the number of pending and running jobs.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_jobs`).Scan(&n)
	return n, err
}

// Handler runs one job. nil acks; an error releases or, after MaxAttempts,
// drops the job.
type Handler func(ctx context.Context, j *Job) error

// Run claims jobs and executes them on up to workers goroutines until ctx is
// cancelled, then waits for in-flight handlers.
func (q *Queue) Run(ctx context.Context, workers int, handler Handler) {
	if workers <= 0 {
		workers = 1
	}
	log := q.opts.Logger
	log.Info("queue: workers started", "workers", workers, "visibility", q.opts.Visibility)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Info("queue: workers stopped")
			return
		case <-ticker.C:
		case <-q.wake:
		}

		for {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				log.Info("queue: workers stopped")
				return
			}
			job, err := q.Claim(ctx)
			if err != nil || job == nil {
				<-sem
				if err != nil && ctx.Err() == nil {
					log.Warn("queue: claim failed", "error", err)
				}
				break
			}
			if job.Attempts > q.opts.MaxAttempts {
				<-sem
				log.Warn("queue: job exceeded max attempts, dropping",
					"idea_id", job.IdeaID, "attempts", job.Attempts, "last_error", job.LastError)
				_ = q.Ack(ctx, job.IdeaID)
				continue
			}
			wg.Add(1)
			go func(j *Job) {
				defer wg.Done()
				defer func() { <-sem }()
				q.execute(ctx, j, handler)
			}(job)
		}
	}
}

func (q *Queue) execute(ctx context.Context, j *Job, handler Handler) {
	log := q.opts.Logger.With("idea_id", j.IdeaID, "reason", j.Reason, "attempt", j.Attempts)
	err := handler(ctx, j)
	// The handler may have been cut short; bookkeeping still has to land.
	bctx := context.WithoutCancel(ctx)
	if err == nil {
		if aerr := q.Ack(bctx, j.IdeaID); aerr != nil {
			log.Warn("queue: ack failed", "error", aerr)
		}
		return
	}
	if j.Attempts >= q.opts.MaxAttempts {
		log.Error("queue: job failed permanently", "error", err)
		_ = q.Ack(bctx, j.IdeaID)
		return
	}
	log.Warn("queue: job failed, will retry", "error", err)
	if rerr := q.Release(bctx, j, err); rerr != nil {
		log.Warn("queue: release failed", "error", rerr)
	}
}
