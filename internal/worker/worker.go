// Package worker runs scheduled background maintenance with graceful
// shutdown handling.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/metrics"
	"github.com/soulart-temple/backend/internal/models"
)

// Pruner removes stale daily usage counters.
type Pruner interface {
	PruneDailyUsage(ctx context.Context, before time.Time) (int64, error)
}

// Stats holds janitor statistics
type Stats struct {
	Runs       int64
	Failures   int64
	RowsPruned int64
	LastRunAt  time.Time
	LastRunErr error
}

// Config holds janitor configuration
type Config struct {
	// Schedule is a standard cron expression or descriptor such as "@every 1h"
	Schedule string
	// Retention is how far behind today daily counters are kept
	Retention time.Duration
	// RunTimeout bounds a single prune pass
	RunTimeout time.Duration
	// ShutdownTimeout is the maximum time to wait for a pass to finish during shutdown
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Schedule:        "@every 1h",
		Retention:       48 * time.Hour,
		RunTimeout:      time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Janitor periodically prunes daily usage counters that can no longer
// affect a decision.
type Janitor struct {
	config Config
	pruner Pruner
	log    *logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	scheduler *cron.Cron
	baseCtx   context.Context

	statsMu sync.RWMutex
	stats   Stats
}

// New creates a new Janitor instance. It fails on an invalid schedule.
func New(config Config, pruner Pruner, log *logger.Logger) (*Janitor, error) {
	defaults := DefaultConfig()
	if config.Schedule == "" {
		config.Schedule = defaults.Schedule
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = defaults.RunTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("worker: invalid schedule %q: %w", config.Schedule, err)
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Janitor{
		config: config,
		pruner: pruner,
		log:    log,
		now:    time.Now,
	}, nil
}

// Start schedules prune passes until Stop is called or ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.scheduler != nil {
		return fmt.Errorf("janitor is already running")
	}

	j.baseCtx = ctx
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(j.config.Schedule, j.run); err != nil {
		return fmt.Errorf("worker: schedule prune: %w", err)
	}
	scheduler.Start()
	j.scheduler = scheduler

	j.log.WithFields(map[string]interface{}{
		"schedule":  j.config.Schedule,
		"retention": j.config.Retention.String(),
	}).Info("usage janitor started")
	return nil
}

// Stop gracefully shuts down the janitor, waiting for a running pass.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	scheduler := j.scheduler
	j.scheduler = nil
	j.mu.Unlock()

	if scheduler == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, j.config.ShutdownTimeout)
	defer cancel()

	select {
	case <-scheduler.Stop().Done():
		j.log.Info("usage janitor stopped")
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (j *Janitor) run() {
	j.mu.Lock()
	ctx := j.baseCtx
	j.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := j.RunOnce(ctx); err != nil {
		j.log.Errorf("[worker] prune failed: %v", err)
	}
}

// RunOnce performs a single prune pass and returns the number of rows
// removed.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	runCtx, cancel := context.WithTimeout(ctx, j.config.RunTimeout)
	defer cancel()

	cutoff := models.DayOf(j.now()).Add(-j.config.Retention)
	n, err := j.pruner.PruneDailyUsage(runCtx, cutoff)

	j.statsMu.Lock()
	j.stats.Runs++
	j.stats.LastRunAt = j.now()
	j.stats.LastRunErr = err
	if err != nil {
		j.stats.Failures++
	} else {
		j.stats.RowsPruned += n
	}
	j.statsMu.Unlock()

	if err != nil {
		return 0, err
	}

	metrics.RecordPruned(n)
	if n > 0 {
		j.log.Infof("[worker] pruned %d daily usage rows before %s", n, cutoff.Format("2006-01-02"))
	}
	return n, nil
}

// Stats returns a snapshot of janitor statistics
func (j *Janitor) Stats() Stats {
	j.statsMu.RLock()
	defer j.statsMu.RUnlock()
	return j.stats
}
