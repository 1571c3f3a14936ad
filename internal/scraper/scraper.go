// Package scraper runs scrape jobs on a bounded pool of workers. Each job
// extracts one site, scores or enriches every record, stages it for review
// and finalizes the job log.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/model"
	"github.com/sykell/product-scraper/internal/quality"
	"github.com/sykell/product-scraper/internal/service"
	"github.com/sykell/product-scraper/internal/siteconfig"
)

var (
	ErrJobNotFound = errors.New("scrape job not found")
	ErrQueueFull   = errors.New("scrape queue is full")
	ErrNotRunning  = errors.New("scraper service is not running")
)

// Extractor produces the records of one site.
type Extractor interface {
	Extract(ctx context.Context, cfg *siteconfig.SiteConfig) ([]model.ExtractedRecord, error)
}

// Enricher completes a record. It must not fail: problems are its own to log.
type Enricher interface {
	Enrich(ctx context.Context, rec model.ExtractedRecord) model.ExtractedRecord
}

// Configs resolves site configurations by website id.
type Configs interface {
	Get(websiteID string) (*siteconfig.SiteConfig, error)
}

type saveFunc func(ctx context.Context, dbConn *gorm.DB, rec model.ExtractedRecord, scrapeLogID *uint, scrapedAt time.Time) (*db.StagingProduct, bool, error)

// Config holds scraper configuration
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// DefaultConfig returns default scraper configuration
func DefaultConfig() *Config {
	return &Config{
		Workers:    2,
		QueueSize:  20,
		JobTimeout: 30 * time.Minute,
	}
}

// NewConfig reads the scraper configuration from environment variables
func NewConfig() *Config {
	cfg := DefaultConfig()
	cfg.Workers = getEnvInt("MAX_BROWSER_SESSIONS", cfg.Workers)
	cfg.QueueSize = getEnvInt("JOB_QUEUE_SIZE", cfg.QueueSize)
	if d, err := time.ParseDuration(getEnvOrDefault("JOB_TIMEOUT", "")); err == nil {
		cfg.JobTimeout = d
	}
	return cfg
}

type job struct {
	id     string
	logID  uint
	cfg    *siteconfig.SiteConfig
	ctx    context.Context
	cancel context.CancelFunc
}

// Service represents the scraper service
type Service struct {
	db        *gorm.DB
	configs   Configs
	extractor Extractor
	enricher  Enricher
	logger    *zap.Logger
	config    *Config
	save      saveFunc
	now       func() time.Time

	queue     chan *job
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool

	jobsMu sync.Mutex
	jobs   map[string]*job
}

// NewService creates a new scraper service. enricher may be nil, in which
// case records are only scored.
func NewService(dbConn *gorm.DB, configs Configs, extractor Extractor, enricher Enricher, logger *zap.Logger, config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		db:        dbConn,
		configs:   configs,
		extractor: extractor,
		enricher:  enricher,
		logger:    logger.With(zap.String("component", "scraper")),
		config:    config,
		save:      service.SaveStagingProduct,
		now:       func() time.Time { return time.Now().UTC() },
		jobs:      make(map[string]*job),
	}
}

// Start starts the scraper workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scraper service is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.queue = make(chan *job, s.config.QueueSize)
	s.isRunning = true

	// Start worker goroutines
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.logger.Info("scraper service started", zap.Int("workers", s.config.Workers), zap.Int("queue_size", s.config.QueueSize))
	return nil
}

// Stop cancels running jobs, fails the queued ones and waits for the
// workers to exit.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.isRunning = false
	s.cancel()
	close(s.queue)

	// Wait for all workers to finish
	s.wg.Wait()

	for j := range s.queue {
		s.fail(j, "scraper service stopped")
		s.forget(j)
	}

	s.logger.Info("scraper service stopped")
	return nil
}

// Trigger starts an asynchronous scrape of websiteID and returns the job id.
// The job log row exists once Trigger returns; if the job cannot be queued
// that row is already finalized FAILED.
func (s *Service) Trigger(ctx context.Context, websiteID string) (string, error) {
	j, err := s.prepare(ctx, websiteID)
	if err != nil {
		return "", err
	}

	if err := s.enqueue(j); err != nil {
		s.fail(j, err.Error())
		return j.id, err
	}

	s.logger.Info("scrape job queued", zap.String("job_id", j.id), zap.String("website_id", websiteID))
	return j.id, nil
}

// RunSync runs a scrape of websiteID on the calling goroutine and returns
// the finalized job.
func (s *Service) RunSync(ctx context.Context, websiteID string) (*service.JobStatus, error) {
	j, err := s.prepare(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	j.ctx, j.cancel = context.WithCancel(ctx)
	s.track(j)

	s.run(j)
	return service.GetScrapeLog(context.WithoutCancel(ctx), s.db, j.id)
}

// Cancel cancels a queued or running job
func (s *Service) Cancel(jobID string) error {
	s.jobsMu.Lock()
	j, ok := s.jobs[jobID]
	s.jobsMu.Unlock()

	if !ok {
		return ErrJobNotFound
	}
	j.cancel()
	s.logger.Info("scrape job cancelled", zap.String("job_id", jobID))
	return nil
}

// Status returns the job log of jobID
func (s *Service) Status(ctx context.Context, jobID string) (*service.JobStatus, error) {
	status, err := service.GetScrapeLog(ctx, s.db, jobID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	return status, err
}

// History returns the latest jobs of a website, newest first
func (s *Service) History(ctx context.Context, websiteID string, limit int) ([]db.ScrapeLog, error) {
	return service.GetScrapeHistory(ctx, s.db, websiteID, limit)
}

// Sources returns every known scrape source
func (s *Service) Sources(ctx context.Context) ([]db.ScrapeSource, error) {
	return service.ListSources(ctx, s.db)
}

// prepare resolves the configuration and persists the RUNNING job log.
func (s *Service) prepare(ctx context.Context, websiteID string) (*job, error) {
	cfg, err := s.configs.Get(websiteID)
	if err != nil {
		return nil, err
	}

	source, err := service.EnsureSource(ctx, s.db, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve scrape source: %w", err)
	}

	id := uuid.NewString()
	entry, err := service.CreateScrapeLog(ctx, s.db, id, source.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("create scrape log: %w", err)
	}
	return &job{id: id, logID: entry.ID, cfg: cfg}, nil
}

func (s *Service) enqueue(j *job) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return ErrNotRunning
	}

	j.ctx, j.cancel = context.WithCancel(s.ctx)
	s.track(j)

	select {
	case s.queue <- j:
		return nil
	default:
		s.forget(j)
		return ErrQueueFull
	}
}

func (s *Service) track(j *job) {
	s.jobsMu.Lock()
	s.jobs[j.id] = j
	s.jobsMu.Unlock()
}

func (s *Service) forget(j *job) {
	s.jobsMu.Lock()
	delete(s.jobs, j.id)
	s.jobsMu.Unlock()
	if j.cancel != nil {
		j.cancel()
	}
}

// worker processes jobs from the queue
func (s *Service) worker(id int) {
	defer s.wg.Done()

	log := s.logger.With(zap.Int("worker", id))
	log.Debug("worker started")

	for {
		select {
		case j, ok := <-s.queue:
			if !ok {
				log.Debug("worker shutting down")
				return
			}
			s.run(j)
		case <-s.ctx.Done():
			log.Debug("worker shutting down")
			return
		}
	}
}

// run executes a job and finalizes its log. It never returns an error: the
// outcome is recorded on the job log.
func (s *Service) run(j *job) {
	ctx := j.ctx
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}

	log := s.logger.With(zap.String("job_id", j.id), zap.String("website_id", j.cfg.WebsiteID))
	log.Info("scrape job started")

	counts, err := s.execute(ctx, j, log)
	s.forget(j)

	// Bookkeeping must survive cancellation of the job itself
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err != nil {
		msg := failureMessage(err)
		log.Error("scrape job failed", zap.String("reason", msg))
		if err := service.CompleteScrapeLog(finishCtx, s.db, j.id, service.JobCounts{}, msg, s.now()); err != nil {
			log.Error("finalize scrape log", zap.Error(err))
		}
		return
	}

	if err := service.CompleteScrapeLog(finishCtx, s.db, j.id, counts, "", s.now()); err != nil {
		log.Error("finalize scrape log", zap.Error(err))
		return
	}
	if err := service.TouchLastScraped(finishCtx, s.db, j.cfg.WebsiteID, s.now()); err != nil {
		log.Warn("update last scraped time", zap.Error(err))
	}

	log.Info("scrape job finished",
		zap.String("status", string(counts.Status())),
		zap.Int("found", counts.Found),
		zap.Int("saved", counts.Saved),
		zap.Int("updated", counts.Updated),
		zap.Int("skipped", counts.Skipped))
}

func (s *Service) execute(ctx context.Context, j *job, log *zap.Logger) (service.JobCounts, error) {
	var counts service.JobCounts

	records, err := s.extractor.Extract(ctx, j.cfg)
	if err != nil {
		return counts, err
	}
	counts.Found = len(records)

	enrich := j.cfg.Options.AIEnrichment && s.enricher != nil
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return counts, err
		}

		if enrich {
			rec = s.enricher.Enrich(ctx, rec)
		} else {
			rec.DataQualityScore = quality.Score(rec)
		}

		_, updated, err := s.save(ctx, s.db, rec, &j.logID, s.now())
		if err != nil {
			if ctx.Err() != nil {
				return counts, ctx.Err()
			}
			log.Error("stage product", zap.String("url", rec.SourceURL), zap.Error(err))
			counts.Skipped++
			continue
		}
		counts.Saved++
		if updated {
			counts.Updated++
		}
	}
	return counts, nil
}

// fail finalizes a job that never ran.
func (s *Service) fail(j *job, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := service.CompleteScrapeLog(ctx, s.db, j.id, service.JobCounts{}, msg, s.now()); err != nil {
		s.logger.Error("finalize scrape log", zap.String("job_id", j.id), zap.Error(err))
	}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "job cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "job timed out"
	default:
		return err.Error()
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnvOrDefault(key, "")); err == nil && n > 0 {
		return n
	}
	return defaultValue
}
