/*
scheduler.go - Automated ad billing and monthly awards scheduler

PURPOSE:
  Periodically materializes the ad earnings of elapsed partnership billing
  periods, and runs the monthly awards for the previous month once it has
  closed.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Both jobs are idempotent, so overlapping or repeated runs (several
    instances, restarts) create nothing twice
  - Previous-month awards are skipped once a completed run is recorded

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewScheduler(handler.Ads, handler.Awards, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - partnerships.go: BillPartnerships endpoint (manual billing)
  - handlers.go: ProcessAwards endpoint (manual awards run)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/earnings-engine/adpartner"
	"github.com/warp/earnings-engine/awards"
	"github.com/warp/earnings-engine/generic"
)

// Scheduler runs the periodic jobs.
type Scheduler struct {
	Ads           *adpartner.Engine
	Awards        *awards.Calculator
	CheckInterval time.Duration
	Enabled       bool
	Now           generic.Clock
	Logger        zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a new scheduler. awardsCalc may be nil.
func NewScheduler(ads *adpartner.Engine, awardsCalc *awards.Calculator, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		Ads:           ads,
		Awards:        awardsCalc,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           generic.SystemClock,
		Logger:        logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info().Msg("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Logger.Info().Dur("interval", s.CheckInterval).Msg("started")
}

// Stop stops the scheduler and waits for a running check to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info().Msg("stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunOnce(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunOnce performs one check. Failures are logged; the next tick retries.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx = s.Logger.WithContext(ctx)

	if s.Ads != nil {
		n, err := s.Ads.BillDuePeriods(ctx)
		if err != nil {
			s.Logger.Error().Err(err).Msg("ad billing failed")
		} else if n > 0 {
			s.Logger.Info().Int("periods", n).Msg("ad billing periods materialized")
		}
	}

	if s.Awards != nil {
		s.processPreviousMonth(ctx)
	}
}

func (s *Scheduler) processPreviousMonth(ctx context.Context) {
	prev := generic.StartOfMonth(generic.NowOr(s.Now)).AddDate(0, -1, 0)
	year, month := prev.Year(), prev.Month()

	if last := s.Awards.Summary(ctx, year, month).LastRun; last != nil && last.Status == awards.RunCompleted {
		return
	}
	res, err := s.Awards.ProcessMonthlyAwards(ctx, year, month)
	if err != nil {
		s.Logger.Error().Err(err).Int("year", year).Int("month", int(month)).Msg("monthly awards failed")
		return
	}
	s.Logger.Info().
		Int("year", year).
		Int("month", int(month)).
		Int("granted", len(res.Granted)).
		Msg("monthly awards processed")
}
