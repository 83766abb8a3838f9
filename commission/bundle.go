package commission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/generic"
)

// =============================================================================
// BUNDLE TABLE - priced line-item commission for a whole bundle
// =============================================================================

// PricedProduct is a product line of a bundle.
type PricedProduct struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// ServiceLine is a service line of a bundle. The trainer keeps 100%.
type ServiceLine struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

type BundleLine struct {
	PricedProduct
	Resolution Resolution
	Commission decimal.Decimal
}

type BundleTable struct {
	Products          []BundleLine
	ProductCommission decimal.Decimal
	ServiceRevenue    decimal.Decimal
	TotalEarnings     decimal.Decimal
}

// LineTotal is unit price x quantity; quantities below 1 count as 1.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	if quantity < 1 {
		quantity = 1
	}
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// BundleTable resolves every product line at asOf and adds the flat service
// revenue: TotalEarnings = sum(product commission) + sum(service revenue).
func (r *Resolver) BundleTable(ctx context.Context, products []PricedProduct, services []ServiceLine, asOf time.Time) (BundleTable, error) {
	if asOf.IsZero() {
		asOf = generic.NowOr(r.Now)
	}
	ids := make([]string, len(products))
	prices := make([]decimal.Decimal, len(products))
	for i, p := range products {
		ids[i] = p.ProductID
		prices[i] = LineTotal(p.UnitPrice, p.Quantity)
	}
	resolutions, err := r.ResolveBatch(ctx, ids, prices, asOf)
	if err != nil {
		return BundleTable{}, err
	}

	table := BundleTable{ProductCommission: decimal.Zero, ServiceRevenue: decimal.Zero}
	for i, res := range resolutions {
		table.Products = append(table.Products, BundleLine{
			PricedProduct: products[i],
			Resolution:    res,
			Commission:    res.EffectiveCommission,
		})
		table.ProductCommission = table.ProductCommission.Add(res.EffectiveCommission)
	}
	for _, s := range services {
		table.ServiceRevenue = table.ServiceRevenue.Add(LineTotal(s.UnitPrice, s.Quantity))
	}
	table.ServiceRevenue = generic.RoundMoney(table.ServiceRevenue)
	table.TotalEarnings = table.ProductCommission.Add(table.ServiceRevenue)
	return table, nil
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

// SetBaseRate changes the platform base rate. Valid range is [0, 1).
func (r *Resolver) SetBaseRate(ctx context.Context, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return generic.Invalid("base_rate", "must be in [0, 1)")
	}
	if err := r.Store.SetBaseRate(ctx, rate, generic.NowOr(r.Now)); err != nil {
		return generic.Unavailable("save base rate", err)
	}
	return nil
}

// UpsertPromotion validates p and saves it. A window that overlaps another
// promotion for the same product is rejected with ErrPromotionOverlap.
func (r *Resolver) UpsertPromotion(ctx context.Context, p Promotion) (Promotion, error) {
	if p.ProductID == "" {
		return Promotion{}, generic.Invalid("product_id", "required")
	}
	if p.BonusRate.IsNegative() || p.BonusRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Promotion{}, generic.Invalid("bonus_rate", "must be in [0, 1)")
	}
	if p.ValidFrom != nil && p.ValidUntil != nil && p.ValidUntil.Before(*p.ValidFrom) {
		return Promotion{}, generic.ErrInvalidPeriod
	}

	existing, err := r.Store.PromotionsForProduct(ctx, p.ProductID)
	if err != nil {
		return Promotion{}, generic.Unavailable("load promotions", err)
	}
	for _, e := range existing {
		if e.ID != p.ID && e.Overlaps(p) {
			return Promotion{}, &generic.PromotionOverlapError{
				ProductID:    p.ProductID,
				PromotionIDs: []string{e.ID},
				BonusRates:   []decimal.Decimal{e.BonusRate},
			}
		}
	}

	if p.ID == "" {
		p.ID = generic.NewID("promo")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = generic.NowOr(r.Now)
	}
	if err := r.Store.SavePromotion(ctx, p); err != nil {
		return Promotion{}, generic.Unavailable("save promotion", err)
	}
	return p, nil
}
