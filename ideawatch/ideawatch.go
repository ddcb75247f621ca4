// CLAUDE:SUMMARY Service facade: idea submission, scan execution via the durable queue, results, feedback, unsubscribe, re-extraction, lifecycle.
// Package ideawatch is the competitor-monitoring service. It wires the scan
// pipeline to persistence, the background job queue and the weekly
// monitoring clock, and exposes the operations served over HTTP, MCP and
// the CLI.
package ideawatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shahar42/competotor-agent/idgen"
	"github.com/shahar42/competotor-agent/ideawatch/internal/ai"
	"github.com/shahar42/competotor-agent/ideawatch/internal/concept"
	"github.com/shahar42/competotor-agent/ideawatch/internal/metrics"
	"github.com/shahar42/competotor-agent/ideawatch/internal/queue"
	"github.com/shahar42/competotor-agent/ideawatch/internal/scan"
	"github.com/shahar42/competotor-agent/ideawatch/internal/scheduler"
	"github.com/shahar42/competotor-agent/ideawatch/internal/scoring"
	"github.com/shahar42/competotor-agent/ideawatch/internal/source"
	"github.com/shahar42/competotor-agent/ideawatch/internal/store"
	"github.com/shahar42/competotor-agent/ideawatch/internal/verdict"
	"github.com/shahar42/competotor-agent/notify"
)

// Re-exported so callers outside the module tree can build registries and
// read results.
type (
	Idea        = store.Idea
	Competitor  = store.Competitor
	IdeaResults = store.IdeaResults
	ScanRun     = store.ScanRun
	Concepts    = concept.Concepts
	Report      = scan.Report
	Registry    = source.Registry
	Generator   = ai.Generator
)

// Service is the ideawatch orchestrator.
type Service struct {
	db         *sql.DB
	store      *store.Store
	extractor  *concept.Extractor
	runner     *scan.Runner
	queue      *queue.Queue
	scheduler  *scheduler.Scheduler
	metrics    *metrics.Metrics
	config     *Config
	logger     *slog.Logger
	newID      idgen.Generator
	now        func() time.Time
	registry   *source.Registry
	complaints source.Searcher
	notifier   notify.Notifier

	mu      sync.Mutex
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithRegistry sets the product sources. Default: an empty registry.
func WithRegistry(r *source.Registry) ServiceOption { return func(s *Service) { s.registry = r } }

// WithComplaintSearch sets the unfiltered web search used by gap analysis.
func WithComplaintSearch(c source.Searcher) ServiceOption {
	return func(s *Service) { s.complaints = c }
}

// WithNotifier sets the digest notifier. Default: digests are logged and dropped.
func WithNotifier(n notify.Notifier) ServiceOption { return func(s *Service) { s.notifier = n } }

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) ServiceOption { return func(s *Service) { s.metrics = m } }

// WithIDGenerator overrides ID generation.
func WithIDGenerator(g idgen.Generator) ServiceOption { return func(s *Service) { s.newID = g } }

// WithClock overrides the time source of the service and its store.
func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

// New creates the service over db. backend is the raw model; the service
// wraps it with the rate gate, timeouts and retries.
func New(db *sql.DB, backend ai.Generator, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if backend == nil {
		return nil, errors.New("ideawatch: model backend is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		db:     db,
		store:  store.NewStore(db),
		config: cfg,
		logger: logger,
		newID:  idgen.Default,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.registry == nil {
		svc.registry = source.NewRegistry()
	}
	if svc.notifier == nil {
		svc.notifier = notify.Discard(logger)
	}
	svc.store.SetClock(svc.now)

	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("ideawatch: schema: %w", err)
	}

	client := ai.NewClient(backend, ai.NewGate(cfg.AIMinInterval), ai.Options{
		Timeout:     cfg.AITimeout,
		MaxAttempts: cfg.AIMaxAttempts,
		BaseBackoff: cfg.AIBaseBackoff,
		Logger:      logger,
		Observe:     svc.metrics.AICall,
	})
	svc.extractor = concept.NewExtractor(client)

	var analyzer *verdict.Analyzer
	if *cfg.EnableAnalysis {
		analyzer = verdict.NewAnalyzer(client, svc.complaints)
	}
	svc.runner = scan.NewRunner(scan.Config{
		Store:          svc.store,
		Extractor:      svc.extractor,
		Sources:        svc.registry,
		Scorer:         scoring.NewScorer(client, cfg.SimilarityThreshold),
		Analyzer:       analyzer,
		Notifier:       svc.notifier,
		Metrics:        svc.metrics,
		Logger:         logger,
		NewID:          svc.newID,
		MaxCandidates:  cfg.MaxCandidates,
		MaxDigestItems: cfg.MaxDigestItems,
		ScoreWorkers:   cfg.ScoreWorkers,
		SourceTimeout:  cfg.SourceTimeout,
	})

	svc.queue = queue.New(db, queue.Options{
		Visibility:   cfg.QueueVisibility,
		PollInterval: cfg.QueuePoll,
		Logger:       logger,
	})
	svc.queue.SetClock(svc.now)
	if err := svc.queue.EnsureTable(context.Background()); err != nil {
		return nil, err
	}

	svc.scheduler = scheduler.New(svc.store, func(ctx context.Context, ideaID string) (bool, error) {
		return svc.queue.Enqueue(ctx, ideaID, queue.ReasonMonitor)
	}, scheduler.Config{Cron: cfg.MonitorCron, Interval: cfg.MonitorInterval}, logger)

	return svc, nil
}

// Start launches the queue workers and the monitoring scheduler.
func (svc *Service) Start(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.cancel != nil {
		return errors.New("ideawatch: already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := svc.scheduler.Start(ctx); err != nil {
		cancel()
		return err
	}
	svc.cancel = cancel
	svc.workers.Add(1)
	go func() {
		defer svc.workers.Done()
		svc.queue.Run(ctx, svc.config.QueueWorkers, svc.handleJob)
	}()
	svc.logger.Info("ideawatch: started", "sources", svc.registry.Names(), "workers", svc.config.QueueWorkers)
	return nil
}

// Close stops the scheduler and waits for in-flight scans.
func (svc *Service) Close() error {
	svc.mu.Lock()
	cancel := svc.cancel
	svc.cancel = nil
	svc.mu.Unlock()
	if cancel == nil {
		return nil
	}
	err := svc.scheduler.Stop()
	cancel()
	svc.workers.Wait()
	svc.logger.Info("ideawatch: stopped")
	return err
}

func (svc *Service) handleJob(ctx context.Context, j *queue.Job) error {
	_, err := svc.runner.Run(ctx, j.IdeaID)
	if errors.Is(err, scan.ErrIdeaNotFound) {
		svc.logger.Warn("ideawatch: queued idea no longer exists", "idea_id", j.IdeaID)
		return nil
	}
	return err
}

// Metrics returns the collectors, or nil.
func (svc *Service) Metrics() *metrics.Metrics { return svc.metrics }

// Sources returns the registered source names in order.
func (svc *Service) Sources() []string { return svc.registry.Names() }

// SubmitIdea validates and stores an idea and queues its first scan. An
// image that cannot be decoded is dropped and the idea continues text-only.
func (svc *Service) SubmitIdea(ctx context.Context, req SubmitRequest) (*Idea, error) {
	idea, err := svc.storeIdea(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := svc.queue.Enqueue(ctx, idea.ID, queue.ReasonSubmit); err != nil {
		return nil, err
	}
	return idea, nil
}

// SubmitAndScan stores an idea and runs its first scan in the caller's
// goroutine. Nothing is queued, so no worker scans it a second time.
func (svc *Service) SubmitAndScan(ctx context.Context, req SubmitRequest) (*Idea, *Report, error) {
	idea, err := svc.storeIdea(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	rep, err := svc.RunScan(ctx, idea.ID)
	if err != nil {
		return idea, nil, err
	}
	return idea, rep, nil
}

func (svc *Service) storeIdea(ctx context.Context, req SubmitRequest) (*Idea, error) {
	if err := validateSubmit(&req); err != nil {
		return nil, err
	}
	log := svc.logger.With("email", req.Email)

	user, err := svc.store.EnsureUser(ctx, svc.newID(), req.Email)
	if err != nil {
		return nil, fmt.Errorf("ideawatch: ensure user: %w", err)
	}
	if !user.Active {
		// Submitting again is an explicit opt-in.
		if _, err := svc.store.SetUserActive(ctx, req.Email, true); err != nil {
			return nil, fmt.Errorf("ideawatch: reactivate user: %w", err)
		}
	}

	idea := &Idea{ID: svc.newID(), UserID: user.ID, Description: req.Description}
	if req.Image != "" {
		img, mime, err := decodeImage(req.Image, req.ImageMIME, svc.config.MaxImageBytes)
		if err != nil {
			log.Warn("ideawatch: image rejected, continuing text-only", "error", err)
		} else {
			idea.Image, idea.ImageMIME = img, mime
		}
	}
	if window := monitorWindows[req.Monitor]; window > 0 {
		until := svc.now().Add(window).UnixMilli()
		idea.Monitoring = true
		idea.MonitorUntil = &until
	}
	if err := svc.store.InsertIdea(ctx, idea); err != nil {
		return nil, fmt.Errorf("ideawatch: insert idea: %w", err)
	}
	log.Info("ideawatch: idea submitted", "idea_id", idea.ID, "monitor", req.Monitor, "image", len(idea.Image) > 0)
	return idea, nil
}

// RunScan executes one scan synchronously.
func (svc *Service) RunScan(ctx context.Context, ideaID string) (*Report, error) {
	rep, err := svc.runner.Run(ctx, ideaID)
	if errors.Is(err, scan.ErrIdeaNotFound) {
		return nil, fmt.Errorf("%w: idea %s", ErrNotFound, ideaID)
	}
	return rep, err
}

// Rescan queues a scan. It reports false when one is already pending.
func (svc *Service) Rescan(ctx context.Context, ideaID string) (bool, error) {
	if _, err := svc.idea(ctx, ideaID); err != nil {
		return false, err
	}
	return svc.queue.Enqueue(ctx, ideaID, queue.ReasonRescan)
}

// Results returns every idea of the user with its competitors, best first.
func (svc *Service) Results(ctx context.Context, email string) ([]*IdeaResults, error) {
	user, err := svc.user(ctx, email)
	if err != nil {
		return nil, err
	}
	res, err := svc.store.Results(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("ideawatch: results: %w", err)
	}
	if res == nil {
		res = []*IdeaResults{}
	}
	return res, nil
}

// RecordFeedback stores the user's relevance judgement on a competitor.
// Repeating the same judgement is a no-op.
func (svc *Service) RecordFeedback(ctx context.Context, competitorID string, relevant bool) error {
	if competitorID == "" {
		return fmt.Errorf("%w: competitor_id is required", ErrInvalidInput)
	}
	ok, err := svc.store.SetFeedback(ctx, competitorID, relevant)
	if err != nil {
		return fmt.Errorf("ideawatch: feedback: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: competitor %s", ErrNotFound, competitorID)
	}
	svc.logger.Info("ideawatch: feedback recorded", "competitor_id", competitorID, "relevant", relevant)
	return nil
}

// Unsubscribe stops all notifications to the email.
func (svc *Service) Unsubscribe(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	ok, err := svc.store.SetUserActive(ctx, email, false)
	if err != nil {
		return fmt.Errorf("ideawatch: unsubscribe: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	svc.logger.Info("ideawatch: user unsubscribed", "email", email)
	return nil
}

// ReextractConcepts discards the cached concept record, extracts a new one
// and queues a scan that uses it. When a concurrent scan stores concepts
// first, that record is kept and returned.
func (svc *Service) ReextractConcepts(ctx context.Context, ideaID string) (*Concepts, error) {
	idea, err := svc.idea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if err := svc.store.ClearConcepts(ctx, idea.ID); err != nil {
		return nil, fmt.Errorf("ideawatch: clear concepts: %w", err)
	}
	var img *ai.Image
	if len(idea.Image) > 0 {
		img = &ai.Image{Data: idea.Image, MIMEType: idea.ImageMIME}
	}
	c, err := svc.extractor.Extract(ctx, idea.Description, img)
	if err != nil {
		return nil, err
	}
	encoded, err := c.Encode()
	if err != nil {
		return nil, err
	}
	wrote, err := svc.store.SetConcepts(ctx, idea.ID, encoded)
	if err != nil {
		return nil, fmt.Errorf("ideawatch: store concepts: %w", err)
	}
	if !wrote {
		fresh, err := svc.idea(ctx, idea.ID)
		if err != nil {
			return nil, err
		}
		if fresh.ConceptsJSON == nil {
			return nil, fmt.Errorf("ideawatch: concepts for %s vanished after re-extraction", idea.ID)
		}
		if c, err = concept.Decode(*fresh.ConceptsJSON); err != nil {
			return nil, fmt.Errorf("ideawatch: decode stored concepts: %w", err)
		}
	}
	if _, err := svc.queue.Enqueue(ctx, idea.ID, queue.ReasonReextract); err != nil {
		return nil, err
	}
	svc.logger.Info("ideawatch: concepts re-extracted", "idea_id", idea.ID, "keywords", c.SearchKeywords, "stored_by_scan", !wrote)
	return c, nil
}

// Runs returns the most recent scan runs of an idea.
func (svc *Service) Runs(ctx context.Context, ideaID string, limit int) ([]*ScanRun, error) {
	if _, err := svc.idea(ctx, ideaID); err != nil {
		return nil, err
	}
	return svc.store.ListRuns(ctx, ideaID, limit)
}

// TickScheduler runs one monitoring pass immediately.
func (svc *Service) TickScheduler(ctx context.Context) (int, error) {
	return svc.scheduler.Tick(ctx)
}

func (svc *Service) idea(ctx context.Context, id string) (*Idea, error) {
	idea, err := svc.store.GetIdea(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ideawatch: get idea: %w", err)
	}
	if idea == nil {
		return nil, fmt.Errorf("%w: idea %s", ErrNotFound, id)
	}
	return idea, nil
}

func (svc *Service) user(ctx context.Context, email string) (*store.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	u, err := svc.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ideawatch: get user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}
