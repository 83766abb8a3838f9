/*
Package rewards implements the trainer loyalty program: an append-only
points ledger, a running points account per trainer and tier membership
derived from lifetime accumulation.

PURPOSE:
  Revenue events (bundle sales, new clients, retained clients, ad
  partnerships, monthly achievements) award points. Redemptions and
  expirations debit them. Tier status is recomputed on every write.

KEY INVARIANTS:
  1. balanceAfter = balanceBefore + points, for every transaction
  2. Transaction n's balanceBefore == transaction n-1's balanceAfter, per
     trainer (writes are serialized per trainer by the store)
  3. lifetimePoints only grows: only the positive part of an award counts
  4. currentTier = tierFor(lifetimePoints)

TIERS:
  bronze      0
  silver      5,000
  gold       15,000
  platinum   35,000

TRANSACTION TYPES:
  bundle_sale           1 point per whole currency unit of an order
  new_client_bonus      100, first order of a client with a trainer
  client_retention      50, every later order of that client
  ad_partnership_bonus  package bonus when a partnership is approved
  achievement           monthly awards and milestones
  redemption            negative, spends points
  expiration            negative, points lapsing
  adjustment            signed, manual correction

SEE ALSO:
  - engine.go: Award, Redeem, Summary
  - factory/tables.go: JSON overrides for thresholds and benefits
*/
package rewards

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIERS
// =============================================================================

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Tiers in ascending order.
var Tiers = []Tier{TierBronze, TierSilver, TierGold, TierPlatinum}

func (t Tier) Valid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold, TierPlatinum:
		return true
	}
	return false
}

// Benefits is the descriptive perk set of a tier, consumed by other subsystems.
type Benefits struct {
	CommissionBonusPercent decimal.Decimal `json:"commission_bonus_percent"`
	PrioritySupport        bool            `json:"priority_support"`
	FeaturedListing        bool            `json:"featured_listing"`
	ExclusiveProducts      bool            `json:"exclusive_products"`
}

// TierTable holds thresholds (minimum lifetime points) and benefits per tier.
// Thresholds must increase strictly along Tiers, bronze at 0.
type TierTable struct {
	Thresholds map[Tier]int64
	Benefits   map[Tier]Benefits
}

// DefaultTierTable is the built-in program.
func DefaultTierTable() TierTable {
	return TierTable{
		Thresholds: map[Tier]int64{
			TierBronze:   0,
			TierSilver:   5000,
			TierGold:     15000,
			TierPlatinum: 35000,
		},
		Benefits: map[Tier]Benefits{
			TierBronze:   {CommissionBonusPercent: decimal.Zero},
			TierSilver:   {CommissionBonusPercent: decimal.NewFromInt(1), PrioritySupport: true},
			TierGold:     {CommissionBonusPercent: decimal.NewFromInt(2), PrioritySupport: true, FeaturedListing: true},
			TierPlatinum: {CommissionBonusPercent: decimal.NewFromInt(3), PrioritySupport: true, FeaturedListing: true, ExclusiveProducts: true},
		},
	}
}

// TierFor returns the highest tier whose threshold is <= lifetime.
func (tt TierTable) TierFor(lifetime int64) Tier {
	tier := TierBronze
	for _, t := range Tiers {
		if lifetime >= tt.Thresholds[t] {
			tier = t
		}
	}
	return tier
}

// NextTier describes progress from the current tier to the next one.
// NextTier is nil at platinum.
type NextTier struct {
	NextTier     *Tier           `json:"next_tier"`
	PointsNeeded int64           `json:"points_needed"`
	Progress     decimal.Decimal `json:"progress"`
}

// NextTierInfo computes progress = clamp(0, 100, (lifetime - current) / (next - current) * 100).
func (tt TierTable) NextTierInfo(tier Tier, lifetime int64) NextTier {
	idx := -1
	for i, t := range Tiers {
		if t == tier {
			idx = i
		}
	}
	if idx < 0 || idx == len(Tiers)-1 {
		return NextTier{NextTier: nil, PointsNeeded: 0, Progress: decimal.NewFromInt(100)}
	}

	next := Tiers[idx+1]
	current, target := tt.Thresholds[tier], tt.Thresholds[next]
	needed := target - lifetime
	if needed < 0 {
		needed = 0
	}

	progress := decimal.NewFromInt(100)
	if span := target - current; span > 0 {
		progress = decimal.NewFromInt(lifetime - current).
			Div(decimal.NewFromInt(span)).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}
	if progress.IsNegative() {
		progress = decimal.Zero
	}
	if progress.GreaterThan(decimal.NewFromInt(100)) {
		progress = decimal.NewFromInt(100)
	}
	return NextTier{NextTier: &next, PointsNeeded: needed, Progress: progress}
}

// CalculateTier applies the default table.
func CalculateTier(lifetime int64) Tier { return DefaultTierTable().TierFor(lifetime) }

// NextTierInfo applies the default table.
func NextTierInfo(tier Tier, lifetime int64) NextTier {
	return DefaultTierTable().NextTierInfo(tier, lifetime)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionType string

const (
	TxBundleSale      TransactionType = "bundle_sale"
	TxNewClientBonus  TransactionType = "new_client_bonus"
	TxClientRetention TransactionType = "client_retention"
	TxAdPartnership   TransactionType = "ad_partnership_bonus"
	TxAchievement     TransactionType = "achievement"
	TxRedemption      TransactionType = "redemption"
	TxExpiration      TransactionType = "expiration"
	TxAdjustment      TransactionType = "adjustment"
)

// IsDebit reports whether the type must carry negative points.
func (t TransactionType) IsDebit() bool {
	switch t {
	case TxRedemption, TxExpiration:
		return true
	case TxBundleSale, TxNewClientBonus, TxClientRetention, TxAdPartnership, TxAchievement, TxAdjustment:
		return false
	}
	return false
}

func (t TransactionType) Valid() bool {
	switch t {
	case TxBundleSale, TxNewClientBonus, TxClientRetention, TxAdPartnership,
		TxAchievement, TxRedemption, TxExpiration, TxAdjustment:
		return true
	}
	return false
}

// Fixed bonus sizes.
const (
	NewClientBonusPoints int64 = 100
	RetentionBonusPoints int64 = 50
)

// PointTransaction is an append-only ledger entry.
type PointTransaction struct {
	ID              string
	TrainerID       string
	TransactionType TransactionType
	Points          int64
	ReferenceType   string
	ReferenceID     string
	Description     string
	BalanceBefore   int64
	BalanceAfter    int64
	IdempotencyKey  string
	CreatedAt       time.Time
}

// Account is the running state of a trainer's points, created lazily.
type Account struct {
	TrainerID         string
	TotalPoints       int64
	LifetimePoints    int64
	CurrentTier       Tier
	YearToDatePoints  int64
	YearToDateRevenue decimal.Decimal
	YearToDateYear    int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewAccount is the lazily created starting state.
func NewAccount(trainerID string, now time.Time) Account {
	return Account{
		TrainerID:         trainerID,
		CurrentTier:       TierBronze,
		YearToDateRevenue: decimal.Zero,
		YearToDateYear:    now.Year(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
