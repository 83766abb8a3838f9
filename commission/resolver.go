/*
Package commission resolves the commission rate a trainer earns on a product.

PURPOSE:
  Every product sale pays the trainer the platform base rate plus, when one
  is running, a time-boxed promotional bonus (a Special Product Fee) for that
  product. The resolver is a pure function of the rate tables and the
  instant asked about.

RATE MODEL:
  baseRate    platform-wide scalar, admin-settable, default 0.10
  bonusRate   from the product's promotion whose [validFrom, validUntil]
              contains asOf; a missing bound is unbounded on that side
  totalRate   baseRate + bonusRate
  commission  price x totalRate, rounded to pennies

INTEGRITY:
  At most one promotion may be active for a product at any instant.
  UpsertPromotion refuses overlapping windows. If the store still returns
  several matches (rows written by another tool), Resolve picks the one with
  the earliest validFrom (ties by id), flags the Resolution with the
  conflict and logs it as a data-integrity violation.

EXAMPLE:
  r := commission.NewResolver(store)
  res, _ := r.Resolve(ctx, "prod-whey", generic.MustParseDecimal("24.95"), now)
  // base 0.10 + bonus 0.20 -> res.EffectiveCommission == 7.49

SEE ALSO:
  - bundle.go: priced line-item tables for whole bundles
  - earnings/ledger.go: main consumer
*/
package commission

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/metrics"
)

// DefaultBaseRate applies until an admin sets one.
var DefaultBaseRate = decimal.RequireFromString("0.10")

// =============================================================================
// TYPES
// =============================================================================

// Promotion is a time-boxed bonus rate layered on top of the base rate.
type Promotion struct {
	ID          string
	ProductID   string
	BonusRate   decimal.Decimal
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	Description string
	CreatedAt   time.Time
}

// ActiveAt reports whether t lies inside [ValidFrom, ValidUntil].
func (p Promotion) ActiveAt(t time.Time) bool {
	if p.ValidFrom != nil && t.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && t.After(*p.ValidUntil) {
		return false
	}
	return true
}

// Overlaps reports whether the two closed windows share at least one instant.
func (p Promotion) Overlaps(o Promotion) bool {
	// p ends before o starts
	if p.ValidUntil != nil && o.ValidFrom != nil && p.ValidUntil.Before(*o.ValidFrom) {
		return false
	}
	// o ends before p starts
	if o.ValidUntil != nil && p.ValidFrom != nil && o.ValidUntil.Before(*p.ValidFrom) {
		return false
	}
	return true
}

// Resolution is the rate breakdown for one product at one instant.
type Resolution struct {
	ProductID           string
	Price               decimal.Decimal
	BaseRate            decimal.Decimal
	BonusRate           decimal.Decimal
	TotalRate           decimal.Decimal
	EffectiveCommission decimal.Decimal
	PromotionID         string

	// Conflict is set when more than one promotion matched asOf.
	Conflict *generic.PromotionOverlapError
}

// Store is the rate-table persistence the resolver needs.
type Store interface {
	// BaseRate returns the configured rate; ok is false when none was ever set.
	BaseRate(ctx context.Context) (rate decimal.Decimal, ok bool, err error)
	SetBaseRate(ctx context.Context, rate decimal.Decimal, updatedAt time.Time) error
	PromotionsForProduct(ctx context.Context, productID string) ([]Promotion, error)
	SavePromotion(ctx context.Context, p Promotion) error
}

// =============================================================================
// RESOLVER
// =============================================================================

type Resolver struct {
	Store           Store
	DefaultBaseRate decimal.Decimal
	Now             generic.Clock
}

func NewResolver(store Store) *Resolver {
	return &Resolver{Store: store, DefaultBaseRate: DefaultBaseRate, Now: generic.SystemClock}
}

// CurrentBaseRate returns the admin-set base rate or the default.
func (r *Resolver) CurrentBaseRate(ctx context.Context) (decimal.Decimal, error) {
	rate, ok, err := r.Store.BaseRate(ctx)
	if err != nil {
		return decimal.Zero, generic.Unavailable("load base rate", err)
	}
	if !ok {
		return r.DefaultBaseRate, nil
	}
	return rate, nil
}

// Resolve computes the commission on price for productID as of asOf.
// A zero asOf means now.
func (r *Resolver) Resolve(ctx context.Context, productID string, price decimal.Decimal, asOf time.Time) (Resolution, error) {
	if productID == "" {
		return Resolution{}, generic.Invalid("product_id", "required")
	}
	if price.IsNegative() {
		return Resolution{}, generic.Invalid("price", "must not be negative")
	}
	if asOf.IsZero() {
		asOf = generic.NowOr(r.Now)
	}

	base, err := r.CurrentBaseRate(ctx)
	if err != nil {
		return Resolution{}, err
	}
	promos, err := r.Store.PromotionsForProduct(ctx, productID)
	if err != nil {
		return Resolution{}, generic.Unavailable("load promotions", err)
	}

	res := Resolution{ProductID: productID, Price: price, BaseRate: base, BonusRate: decimal.Zero}
	active := activePromotions(promos, asOf)
	if len(active) > 0 {
		res.BonusRate = active[0].BonusRate
		res.PromotionID = active[0].ID
	}
	if len(active) > 1 {
		conflict := &generic.PromotionOverlapError{ProductID: productID}
		for _, p := range active {
			conflict.PromotionIDs = append(conflict.PromotionIDs, p.ID)
			conflict.BonusRates = append(conflict.BonusRates, p.BonusRate)
		}
		res.Conflict = conflict
		metrics.PromotionConflicts.Inc()
		zerolog.Ctx(ctx).Error().
			Str("product_id", productID).
			Strs("promotion_ids", conflict.PromotionIDs).
			Str("selected", res.PromotionID).
			Time("as_of", asOf).
			Msg("data integrity: multiple active promotions")
	}

	res.TotalRate = res.BaseRate.Add(res.BonusRate)
	res.EffectiveCommission = generic.RoundMoney(price.Mul(res.TotalRate))
	return res, nil
}

// ResolveBatch resolves one product per price, in order.
func (r *Resolver) ResolveBatch(ctx context.Context, productIDs []string, prices []decimal.Decimal, asOf time.Time) ([]Resolution, error) {
	if len(productIDs) != len(prices) {
		return nil, generic.Invalid("prices", "must have one price per product")
	}
	if asOf.IsZero() {
		asOf = generic.NowOr(r.Now)
	}
	out := make([]Resolution, 0, len(productIDs))
	for i, id := range productIDs {
		res, err := r.Resolve(ctx, id, prices[i], asOf)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// activePromotions returns the promotions containing t, earliest start first.
func activePromotions(promos []Promotion, t time.Time) []Promotion {
	var active []Promotion
	for _, p := range promos {
		if p.ActiveAt(t) {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		fi, fj := active[i].ValidFrom, active[j].ValidFrom
		switch {
		case fi == nil && fj != nil:
			return true
		case fi != nil && fj == nil:
			return false
		case fi != nil && fj != nil && !fi.Equal(*fj):
			return fi.Before(*fj)
		}
		return active[i].ID < active[j].ID
	})
	return active
}
