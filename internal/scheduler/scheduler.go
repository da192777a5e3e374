// Package scheduler runs the unattended nightly import on a cron spec.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kzhdev5/tbank-bridge/internal/config"
)

// jobTimeout bounds a single unattended import run, including its
// login retries and the CSV download.
const jobTimeout = 10 * time.Minute

// Job is what the scheduler triggers. The importer satisfies it.
type Job interface {
	AutoImport(ctx context.Context) error
}

type Scheduler struct {
	cfg    config.SchedulerConfig
	job    Job
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	entryID cron.EntryID
}

func New(cfg config.SchedulerConfig, job Job, logger *zap.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduler timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		cfg:    cfg,
		job:    job,
		logger: logger.Named("scheduler"),
	}
	s.cron = cron.New(cron.WithLocation(loc))
	id, err := s.cron.AddFunc(cfg.Spec, s.run)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", cfg.Spec, err)
	}
	s.entryID = id
	return s, nil
}

// Update replaces the cron spec at runtime. The old entry is removed
// only after the new spec parses, so a bad spec leaves the existing
// schedule in place.
func (s *Scheduler) Update(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	s.cron.Remove(s.entryID)
	s.entryID = id
	s.logger.Info("Schedule updated.", zap.String("spec", spec))
	return nil
}

// Start begins firing the job per the cron spec. No-op when the
// scheduler is disabled in config.
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		s.logger.Info("Scheduler disabled, unattended imports will not run.")
		return
	}
	s.cron.Start()
	s.logger.Info("Scheduler started.", zap.String("spec", s.cfg.Spec), zap.String("timezone", s.cfg.Timezone))
}

// Stop halts the cron loop and waits for an in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) run() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Previous import still running, skipping this tick.")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	log := s.logger.With(zap.String("run_id", uuid.NewString()))
	log.Info("Unattended import starting.")
	if err := s.job.AutoImport(ctx); err != nil {
		log.Error("Unattended import failed.", zap.Error(err))
		return
	}
	log.Info("Unattended import finished.")
}
