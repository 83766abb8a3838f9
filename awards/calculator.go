package awards

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/metrics"
	"github.com/warp/earnings-engine/rewards"
)

// Awarder is the slice of the points engine the calculator uses.
type Awarder interface {
	Award(ctx context.Context, in rewards.AwardInput) (rewards.AwardResult, error)
}

// Notifier is told about every newly granted award. Failures are its own
// business.
type Notifier interface {
	AwardGranted(ctx context.Context, a Award)
}

type Calculator struct {
	Store    Store
	Points   Awarder
	Notifier Notifier
	Now      generic.Clock
}

func NewCalculator(store Store, points Awarder) *Calculator {
	return &Calculator{Store: store, Points: points, Now: generic.SystemClock}
}

// RunResult summarizes one ProcessMonthlyAwards call.
type RunResult struct {
	Run     Run
	Granted []Award
	// AlreadyHeld counts candidates whose identity had been granted before.
	AlreadyHeld int
}

// =============================================================================
// PROCESS
// =============================================================================

// ProcessMonthlyAwards grants the awards earned in (year, month). Re-running
// a month grants nothing already granted; points for an award are keyed on
// its identity, so a run interrupted between the award and its points is
// completed by the next one.
func (c *Calculator) ProcessMonthlyAwards(ctx context.Context, year int, month time.Month) (RunResult, error) {
	if month < time.January || month > time.December {
		return RunResult{}, generic.Invalid("month", "must be 1-12")
	}
	if year < 2000 {
		return RunResult{}, generic.Invalid("year", "out of range")
	}

	start := time.Now()
	now := generic.NowOr(c.Now)
	run := Run{ID: generic.NewID("awr"), Year: year, Month: month, Status: RunRunning, StartedAt: now}
	log := zerolog.Ctx(ctx).With().Int("year", year).Int("month", int(month)).Str("run_id", run.ID).Logger()
	if err := c.Store.SaveAwardRun(ctx, run); err != nil {
		return RunResult{}, generic.Unavailable("save award run", err)
	}

	result, err := c.process(ctx, year, month, now)
	result.Run = run

	done := generic.NowOr(c.Now)
	result.Run.CompletedAt = &done
	result.Run.AwardsGranted = len(result.Granted)
	for _, a := range result.Granted {
		result.Run.PointsGranted += a.Points
	}
	result.Run.Status = RunCompleted
	if err != nil {
		result.Run.Status = RunFailed
		result.Run.Error = err.Error()
	}
	if serr := c.Store.SaveAwardRun(ctx, result.Run); serr != nil {
		log.Error().Err(serr).Msg("failed to record award run")
	}
	metrics.AwardRunDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error().Err(err).Int("granted", len(result.Granted)).Msg("monthly awards run failed")
		return result, err
	}
	log.Info().
		Int("granted", len(result.Granted)).
		Int("already_held", result.AlreadyHeld).
		Int64("points", result.Run.PointsGranted).
		Msg("monthly awards run completed")
	return result, nil
}

func (c *Calculator) process(ctx context.Context, year int, month time.Month, now time.Time) (RunResult, error) {
	var result RunResult
	period := generic.MonthPeriod(year, month)

	stats, err := c.Store.MonthStats(ctx, period)
	if err != nil {
		return result, generic.Unavailable("load month stats", err)
	}

	for _, a := range Candidates(stats, year, month) {
		a.ID = generic.NewID("awd")
		a.CreatedAt = now

		inserted, err := c.Store.InsertAward(ctx, a)
		if err != nil {
			return result, generic.Unavailable("insert award", err)
		}
		if err := c.pay(ctx, a); err != nil {
			return result, err
		}
		if !inserted {
			result.AlreadyHeld++
			continue
		}

		result.Granted = append(result.Granted, a)
		metrics.AwardsGranted.WithLabelValues(string(a.Type)).Inc()
		if c.Notifier != nil {
			c.Notifier.AwardGranted(ctx, a)
		}
	}
	return result, nil
}

func (c *Calculator) pay(ctx context.Context, a Award) error {
	if c.Points == nil || a.Points <= 0 {
		return nil
	}
	_, err := c.Points.Award(ctx, rewards.AwardInput{
		TrainerID:      a.TrainerID,
		Points:         a.Points,
		Type:           rewards.TxAchievement,
		ReferenceType:  "award",
		ReferenceID:    string(a.Type) + ":" + a.Key(),
		Description:    a.Title,
		IdempotencyKey: "award:" + a.TrainerID + ":" + string(a.Type) + ":" + a.Key(),
	})
	return err
}

// =============================================================================
// RULES
// =============================================================================

// Candidates applies every rule to the month's stats. The result is
// deterministic: trainers in id order, rules in declaration order.
func Candidates(stats []TrainerStats, year int, month time.Month) []Award {
	sorted := append([]TrainerStats(nil), stats...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TrainerID < sorted[j].TrainerID })

	var out []Award
	monthly := func(trainerID string, t AwardType, title string, pts int64) Award {
		return Award{TrainerID: trainerID, Type: t, Title: title, Points: pts, Year: year, Month: month}
	}

	if top, ok := topSeller(sorted); ok {
		out = append(out, monthly(top.TrainerID, TypeTopSeller,
			fmt.Sprintf("Top seller %s %d", month, year), TopSellerPoints))
	}

	for _, s := range sorted {
		if s.Deliveries >= PerfectDeliveryMinimum && s.DeliveriesConfirmed == s.Deliveries {
			out = append(out, monthly(s.TrainerID, TypePerfectDelivery,
				fmt.Sprintf("Perfect delivery %s %d", month, year), PerfectDeliveryPoints))
		}

		if s.Clients >= RetentionMinClients {
			repeat := generic.PercentOf(decimal.NewFromInt(int64(s.RepeatClients)), decimal.NewFromInt(int64(s.Clients)))
			if repeat.GreaterThanOrEqual(RetentionMinRepeatPercent) {
				out = append(out, monthly(s.TrainerID, TypeRetentionMaster,
					fmt.Sprintf("Retention master %s %d", month, year), RetentionMasterPoints))
			}
		}

		for _, m := range ClientMilestones {
			if int64(s.LifetimeClients) >= m {
				out = append(out, Award{
					TrainerID: s.TrainerID, Type: TypeClientMilestone,
					Title:  fmt.Sprintf("%d clients", m),
					Points: m * ClientMilestonePoints, Year: year, Month: month, Milestone: m,
				})
			}
		}

		for _, m := range RevenueMilestones {
			if s.LifetimeRevenue.GreaterThanOrEqual(decimal.NewFromInt(m)) {
				out = append(out, Award{
					TrainerID: s.TrainerID, Type: TypeRevenueMilestone,
					Title:  fmt.Sprintf("%d lifetime revenue", m),
					Points: m / 10, Year: year, Month: month, Milestone: m,
				})
			}
		}
	}
	return out
}

// topSeller returns the trainer with the highest positive revenue; ties go
// to the lowest trainer id.
func topSeller(sorted []TrainerStats) (TrainerStats, bool) {
	var best TrainerStats
	found := false
	for _, s := range sorted {
		if !s.Revenue.IsPositive() {
			continue
		}
		if !found || s.Revenue.GreaterThan(best.Revenue) {
			best, found = s, true
		}
	}
	return best, found
}

// =============================================================================
// QUERIES
// =============================================================================

type Summary struct {
	Year    int
	Month   time.Month
	Awards  []Award
	ByType  map[AwardType]int
	Points  int64
	LastRun *Run
}

// Summary lists the awards created for (year, month) and the latest run.
func (c *Calculator) Summary(ctx context.Context, year int, month time.Month) Summary {
	s := Summary{Year: year, Month: month, Awards: []Award{}, ByType: map[AwardType]int{}}
	log := zerolog.Ctx(ctx)

	awards, err := c.Store.ListAwards(ctx, Filter{Year: year, Month: month})
	if err != nil {
		log.Warn().Err(err).Msg("awards summary degraded")
	} else {
		s.Awards = awards
	}
	for _, a := range s.Awards {
		s.ByType[a.Type]++
		s.Points += a.Points
	}

	run, err := c.Store.LatestAwardRun(ctx, year, month)
	if err != nil {
		log.Warn().Err(err).Msg("latest award run unavailable")
	}
	s.LastRun = run
	return s
}

func (c *Calculator) ListForTrainer(ctx context.Context, trainerID string) []Award {
	awards, err := c.Store.ListAwards(ctx, Filter{TrainerID: trainerID})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("trainer_id", trainerID).Msg("trainer awards degraded")
		return []Award{}
	}
	return awards
}
