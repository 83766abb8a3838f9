/*
Package awards runs the monthly achievement batch.

PURPOSE:
  ProcessMonthlyAwards(year, month) scans one calendar month of earnings
  and delivery data, grants badges and pays their points through the
  loyalty engine. It is triggered externally once a month and is safe to
  re-run: every award has an identity, and an identity already granted is
  never granted again.

AWARDS:
  top_seller          highest order revenue in the month (one trainer)    500
  perfect_delivery    >= 5 deliveries in the month, all confirmed         250
  retention_master    >= 3 clients in the month, >= 80% repeat buyers     300
  client_milestone    10 / 25 / 50 / 100 lifetime clients, once ever      milestone x 10
  revenue_milestone   1k / 5k / 10k / 25k / 50k lifetime revenue, once    milestone / 10

IDENTITY:
  monthly types    (trainer, type, year-month)
  milestone types  (trainer, type, milestone)

RUNS:
  Each call is recorded in award_runs with its outcome, the way
  reconciliation runs are tracked for scheduled jobs.
*/
package awards

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/generic"
)

type AwardType string

const (
	TypeTopSeller        AwardType = "top_seller"
	TypePerfectDelivery  AwardType = "perfect_delivery"
	TypeRetentionMaster  AwardType = "retention_master"
	TypeClientMilestone  AwardType = "client_milestone"
	TypeRevenueMilestone AwardType = "revenue_milestone"
)

// Milestone reports whether the type is granted once per milestone ever
// rather than once per month.
func (t AwardType) Milestone() bool {
	switch t {
	case TypeClientMilestone, TypeRevenueMilestone:
		return true
	case TypeTopSeller, TypePerfectDelivery, TypeRetentionMaster:
		return false
	}
	return false
}

// Rule thresholds and payouts.
const (
	TopSellerPoints        int64 = 500
	PerfectDeliveryPoints  int64 = 250
	RetentionMasterPoints  int64 = 300
	ClientMilestonePoints  int64 = 10 // per client of the milestone
	PerfectDeliveryMinimum       = 5
	RetentionMinClients          = 3
)

// RetentionMinRepeatPercent is the repeat-buyer share retention_master needs.
var RetentionMinRepeatPercent = decimal.NewFromInt(80)

var (
	ClientMilestones  = []int64{10, 25, 50, 100}
	RevenueMilestones = []int64{1000, 5000, 10000, 25000, 50000}
)

// Award is a granted achievement.
type Award struct {
	ID        string
	TrainerID string
	Type      AwardType
	Title     string
	Points    int64
	Year      int
	Month     time.Month
	Milestone int64 // zero for monthly types
	CreatedAt time.Time
}

// Key is the award identity within (trainer, type).
func (a Award) Key() string {
	if a.Type.Milestone() {
		return fmt.Sprintf("milestone:%d", a.Milestone)
	}
	return fmt.Sprintf("%04d-%02d", a.Year, int(a.Month))
}

// TrainerStats is what one month looks like for one trainer.
type TrainerStats struct {
	TrainerID string

	// Within the month.
	Revenue             decimal.Decimal
	Deliveries          int
	DeliveriesConfirmed int
	Clients             int
	RepeatClients       int // month clients with more than one order ever

	// Up to the end of the month.
	LifetimeClients int
	LifetimeRevenue decimal.Decimal
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run records one ProcessMonthlyAwards call.
type Run struct {
	ID            string
	Year          int
	Month         time.Month
	Status        RunStatus
	AwardsGranted int
	PointsGranted int64
	Error         string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

type Filter struct {
	TrainerID string
	Year      int
	Month     time.Month
}

type Store interface {
	// MonthStats returns stats for every trainer with activity up to p.End.
	MonthStats(ctx context.Context, p generic.Period) ([]TrainerStats, error)

	// InsertAward reports false when the identity is already granted.
	InsertAward(ctx context.Context, a Award) (bool, error)
	ListAwards(ctx context.Context, f Filter) ([]Award, error)

	SaveAwardRun(ctx context.Context, r Run) error
	LatestAwardRun(ctx context.Context, year int, month time.Month) (*Run, error)
}
