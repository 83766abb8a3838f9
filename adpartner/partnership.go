/*
Package adpartner is the commission engine for local-business advertising
packages a trainer brokers.

PACKAGE TABLE (defaults):

	tier       monthly fee   trainer rate   bonus points
	bronze          99           15%            500
	silver         249           18%          1,000
	gold           499           20%          2,000
	platinum       999           25%          5,000

SNAPSHOT SEMANTICS:
  Create copies fee, rate and bonus from the table onto the partnership.
  Later table edits (see factory/tables.go) never reach existing rows.

LIFECYCLE:
  pending --Approve--> active --Cancel--> cancelled
  pending --Cancel---> cancelled

BILLING:
  Approve materializes the AdEarning of the first 30-day period and awards
  the bonus points. BillDuePeriods (run by the api scheduler) renews every
  active partnership whose renewal date has passed, one period at a time.
  A partnership created with an end date stops billing there; one created
  without renews until cancelled.
  AdEarnings are unique per (partnership, periodStart).
*/
package adpartner

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/generic"
)

// DefaultPeriodDays is the length of one billing period.
const DefaultPeriodDays = 30

// =============================================================================
// PACKAGE TABLE
// =============================================================================

type PackageTier string

const (
	TierBronze   PackageTier = "bronze"
	TierSilver   PackageTier = "silver"
	TierGold     PackageTier = "gold"
	TierPlatinum PackageTier = "platinum"
)

var PackageTiers = []PackageTier{TierBronze, TierSilver, TierGold, TierPlatinum}

func (t PackageTier) Valid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold, TierPlatinum:
		return true
	}
	return false
}

// Package is the fee, rate and bonus a tier fixes.
type Package struct {
	Tier           PackageTier
	MonthlyFee     decimal.Decimal
	CommissionRate decimal.Decimal
	BonusPoints    int64
}

// Commission is fee x rate, rounded to pennies.
func (p Package) Commission() decimal.Decimal {
	return generic.RoundMoney(p.MonthlyFee.Mul(p.CommissionRate))
}

type PackageTable map[PackageTier]Package

func DefaultPackages() PackageTable {
	mk := func(t PackageTier, fee int64, rate string, bonus int64) Package {
		return Package{Tier: t, MonthlyFee: decimal.NewFromInt(fee), CommissionRate: decimal.RequireFromString(rate), BonusPoints: bonus}
	}
	return PackageTable{
		TierBronze:   mk(TierBronze, 99, "0.15", 500),
		TierSilver:   mk(TierSilver, 249, "0.18", 1000),
		TierGold:     mk(TierGold, 499, "0.20", 2000),
		TierPlatinum: mk(TierPlatinum, 999, "0.25", 5000),
	}
}

// =============================================================================
// PARTNERSHIPS AND EARNINGS
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Partnership carries a frozen copy of its package.
type Partnership struct {
	ID                    string
	TrainerID             string
	BusinessID            string
	PackageTier           PackageTier
	MonthlyFee            decimal.Decimal
	TrainerCommissionRate decimal.Decimal
	BonusPointsAwarded    int64
	Status                Status
	StartDate             time.Time
	EndDate               time.Time
	RenewalDate           time.Time
	AutoRenew             bool
	ApprovedBy            string
	ApprovedAt            *time.Time
	CancelledAt           *time.Time
	CreatedAt             time.Time
}

type EarningStatus string

const (
	EarningPending   EarningStatus = "pending"
	EarningConfirmed EarningStatus = "confirmed"
	EarningPaid      EarningStatus = "paid"
)

// Earning is one billing period of an active partnership.
type Earning struct {
	ID               string
	TrainerID        string
	PartnershipID    string
	BusinessID       string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	MonthlyFee       decimal.Decimal
	CommissionRate   decimal.Decimal
	CommissionEarned decimal.Decimal
	BonusPoints      int64
	Status           EarningStatus
	CreatedAt        time.Time
}

// =============================================================================
// STORE
// =============================================================================

type Filter struct {
	TrainerID string
	Status    Status
}

type Store interface {
	InsertPartnership(ctx context.Context, p Partnership) error
	GetPartnership(ctx context.Context, id string) (*Partnership, error)
	ListPartnerships(ctx context.Context, f Filter) ([]Partnership, error)

	// ActivatePartnership moves pending -> active and inserts first, in one
	// transaction. It reports false when the partnership was not pending.
	ActivatePartnership(ctx context.Context, id, approverID string, at time.Time, first Earning) (bool, error)

	// CancelPartnership moves pending or active -> cancelled.
	CancelPartnership(ctx context.Context, id string, at time.Time) (bool, error)

	// RenewPartnership moves the renewal date to next.PeriodEnd, extending
	// the end date when next runs past it, provided the renewal date still
	// equals dueAt. next is inserted (ignored when the period already
	// exists) in the same transaction.
	RenewPartnership(ctx context.Context, id string, dueAt time.Time, next Earning) (bool, error)

	ListAdEarnings(ctx context.Context, trainerID string) ([]Earning, error)
}
