package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner executes one named pipeline to completion. The pipelines
// package provides the production implementation.
type Runner interface {
	Run(ctx context.Context, pipeline string, payload []byte) error
}

// Ticker polls the schedule catalog and runs due jobs. One job failing
// never blocks its siblings or stops the loop.
type Ticker struct {
	store    *Store
	runner   Runner
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger
}

// TickerConfig contains configuration for the scheduler loop.
type TickerConfig struct {
	Interval time.Duration // how often to check for due jobs, default 1s
}

func DefaultTickerConfig() TickerConfig {
	return TickerConfig{Interval: time.Second}
}

func NewTicker(ctx context.Context, store *Store, runner Runner, cfg TickerConfig, logger *zap.SugaredLogger) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	tickerCtx, cancel := context.WithCancel(ctx)
	return &Ticker{
		store:    store,
		runner:   runner,
		interval: cfg.Interval,
		ctx:      tickerCtx,
		cancel:   cancel,
		logger:   logger,
	}
}

// Start begins the ticker loop.
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.logger.Infow("Scheduler started", "interval", t.interval)
}

// Stop cancels the loop and waits for any in-flight job to finish.
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.logger.Infow("Scheduler stopped")
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case now := <-ticker.C:
			t.tick(now)
		}
	}
}

// tick runs every due job sequentially. Sequential execution keeps the
// per-family sole-writer guarantee: two jobs touching the same catalog
// never overlap.
func (t *Ticker) tick(now time.Time) {
	jobs, err := t.store.ListJobsDue(t.ctx, now)
	if err != nil {
		t.logger.Warnw("Failed to list due jobs", "err", err)
		return
	}

	for _, job := range jobs {
		select {
		case <-t.ctx.Done():
			return
		default:
		}
		t.execute(job, now)
	}
}

func (t *Ticker) execute(job *Job, now time.Time) {
	start := time.Now()
	t.logger.Infow("Running scheduled job", "job_id", job.ID, "pipeline", job.Pipeline)

	runErr := t.runner.Run(t.ctx, job.Pipeline, job.Payload)

	elapsed := time.Since(start)
	nextRun := now.Add(time.Duration(job.IntervalSeconds) * time.Second)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		t.logger.Errorw("Scheduled job failed",
			"job_id", job.ID, "pipeline", job.Pipeline,
			"duration", elapsed.Round(time.Millisecond), "err", runErr)
	} else {
		t.logger.Infow("Scheduled job done",
			"job_id", job.ID, "pipeline", job.Pipeline,
			"duration", elapsed.Round(time.Millisecond),
			"next_run_at", nextRun.Format(time.RFC3339))
	}

	if err := t.store.RecordRun(t.ctx, job.ID, now, nextRun, errMsg); err != nil {
		t.logger.Errorw("Failed to record job run", "job_id", job.ID, "err", err)
	}
}

// SeedDefaults installs the stock triggers on an empty catalog: hourly
// feed polling, message checks every ten minutes, and a daily podcast
// sweep at 08:00 local time.
func SeedDefaults(ctx context.Context, store *Store, logger *zap.SugaredLogger) error {
	n, err := store.CountJobs(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	eightAM := nextDailyAt(time.Now(), 8)
	defaults := []*Job{
		{Pipeline: "rss-to-obsidian", IntervalSeconds: 3600},
		{Pipeline: "messages-to-reply", IntervalSeconds: 600},
		{Pipeline: "podcast-to-obsidian", IntervalSeconds: 86400, NextRunAt: &eightAM},
	}
	for _, job := range defaults {
		if err := store.CreateJob(ctx, job); err != nil {
			return err
		}
		if logger != nil {
			logger.Infow("Seeded default trigger",
				"pipeline", job.Pipeline, "interval_seconds", job.IntervalSeconds)
		}
	}
	return nil
}

// nextDailyAt returns the next occurrence of the given local hour.
func nextDailyAt(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
