// Package scheduler wakes up on a cron expression, switches off expired
// monitoring windows and enqueues every idea whose weekly re-scan is due.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/shahar42/competotor-agent/ideawatch/internal/store"
)

// Config configures the scheduler.
type Config struct {
	// Cron is a five-field cron expression, UTC. Default: "0 9 * * 1".
	Cron string
	// Interval is the minimum time between two scans of one idea. Default: 7 days.
	Interval time.Duration
}

func (c *Config) defaults() {
	if c.Cron == "" {
		c.Cron = "0 9 * * 1"
	}
	if c.Interval <= 0 {
		c.Interval = 7 * 24 * time.Hour
	}
}

// JobSink receives due idea IDs. It reports whether a job was queued.
type JobSink func(ctx context.Context, ideaID string) (bool, error)

// Scheduler drives monitoring re-scans.
type Scheduler struct {
	store  *store.Store
	sink   JobSink
	config Config
	logger *slog.Logger
	cron   gocron.Scheduler
}

// New creates a Scheduler.
func New(s *store.Store, sink JobSink, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: s, sink: sink, config: cfg, logger: logger}
}

// Start registers the cron job and starts the underlying scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("scheduler: create: %w", err)
	}
	_, err = cron.NewJob(
		gocron.CronJob(s.config.Cron, false),
		gocron.NewTask(func() {
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler: tick failed", "error", err)
			}
		}),
		gocron.WithName("monitoring-rescan"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cron.Shutdown()
		return fmt.Errorf("scheduler: register %q: %w", s.config.Cron, err)
	}
	s.cron = cron
	cron.Start()
	s.logger.Info("scheduler: started", "cron", s.config.Cron, "interval", s.config.Interval)
	return nil
}

// Stop shuts the cron scheduler down, waiting for a running tick.
func (s *Scheduler) Stop() error {
	if s.cron == nil {
		return nil
	}
	return s.cron.Shutdown()
}

// Tick runs one scheduling pass and returns the number of ideas queued.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	expired, err := s.store.ExpireMonitoring(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler: expire monitoring: %w", err)
	}
	if expired > 0 {
		s.logger.Info("scheduler: monitoring windows expired", "ideas", expired)
	}

	due, err := s.store.DueIdeas(ctx, s.config.Interval)
	if err != nil {
		return 0, fmt.Errorf("scheduler: due ideas: %w", err)
	}
	queued := 0
	for _, idea := range due {
		ok, err := s.sink(ctx, idea.ID)
		if err != nil {
			s.logger.Warn("scheduler: enqueue failed", "idea_id", idea.ID, "error", err)
			continue
		}
		if ok {
			queued++
		}
	}
	s.logger.Info("scheduler: tick", "due", len(due), "queued", queued)
	return queued, nil
}
