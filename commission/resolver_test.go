package commission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/earnings-engine/commission"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var march10 = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestResolver(t *testing.T) (*commission.Resolver, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := commission.NewResolver(store)
	r.Now = func() time.Time { return march10 }
	return r, store
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) *time.Time {
	t := time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// =============================================================================
// RESOLVE
// =============================================================================

func TestResolve_DefaultBaseRate(t *testing.T) {
	r, _ := newTestResolver(t)

	res, err := r.Resolve(context.Background(), "prod-shaker", dec("699.95"), march10)

	require.NoError(t, err)
	assert.True(t, res.BaseRate.Equal(dec("0.10")))
	assert.True(t, res.BonusRate.IsZero())
	assert.Empty(t, res.PromotionID)
	assert.Equal(t, "70.00", res.EffectiveCommission.StringFixed(2))
}

func TestResolve_ActivePromotion(t *testing.T) {
	// GIVEN: a 0.20 promotion on whey running through March
	r, _ := newTestResolver(t)
	ctx := context.Background()
	promo, err := r.UpsertPromotion(ctx, commission.Promotion{
		ProductID: "prod-whey", BonusRate: dec("0.20"), ValidFrom: day(1), ValidUntil: day(31),
	})
	require.NoError(t, err)

	// WHEN: resolving inside the window
	res, err := r.Resolve(ctx, "prod-whey", dec("24.95"), march10)

	// THEN: base + bonus, rounded half-up to pennies
	require.NoError(t, err)
	assert.True(t, res.TotalRate.Equal(dec("0.30")))
	assert.Equal(t, promo.ID, res.PromotionID)
	assert.Equal(t, "7.49", res.EffectiveCommission.StringFixed(2))
	assert.Nil(t, res.Conflict)
}

func TestResolve_OutsideWindow(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()
	_, err := r.UpsertPromotion(ctx, commission.Promotion{
		ProductID: "prod-whey", BonusRate: dec("0.20"), ValidFrom: day(1), ValidUntil: day(5),
	})
	require.NoError(t, err)

	res, err := r.Resolve(ctx, "prod-whey", dec("24.95"), march10)
	require.NoError(t, err)
	assert.True(t, res.BonusRate.IsZero())
	assert.Equal(t, "2.50", res.EffectiveCommission.StringFixed(2))
}

func TestResolve_OpenEndedWindows(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()
	_, err := r.UpsertPromotion(ctx, commission.Promotion{
		ProductID: "prod-bar", BonusRate: dec("0.05"), ValidFrom: day(1),
	})
	require.NoError(t, err)

	later := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	res, err := r.Resolve(ctx, "prod-bar", dec("100"), later)
	require.NoError(t, err)
	assert.True(t, res.TotalRate.Equal(dec("0.15")))

	before := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	res, err = r.Resolve(ctx, "prod-bar", dec("100"), before)
	require.NoError(t, err)
	assert.True(t, res.TotalRate.Equal(dec("0.10")))
}

func TestResolve_AdminBaseRate(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	require.NoError(t, r.SetBaseRate(ctx, dec("0.15")))
	rate, err := r.CurrentBaseRate(ctx)
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.15")))

	assert.ErrorIs(t, r.SetBaseRate(ctx, dec("1")), generic.ErrValidation)
	assert.ErrorIs(t, r.SetBaseRate(ctx, dec("-0.01")), generic.ErrValidation)
}

func TestResolve_Validation(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "", dec("1"), march10)
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = r.Resolve(ctx, "prod", dec("-1"), march10)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// PROMOTION INTEGRITY
// =============================================================================

func TestUpsertPromotion_RejectsOverlap(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()
	first, err := r.UpsertPromotion(ctx, commission.Promotion{
		ProductID: "prod-whey", BonusRate: dec("0.20"), ValidFrom: day(1), ValidUntil: day(15),
	})
	require.NoError(t, err)

	_, err = r.UpsertPromotion(ctx, commission.Promotion{
		ProductID: "prod-whey", BonusRate: dec("0.10"), ValidFrom: day(15), ValidUntil: day(20),
	})

	var overlap *generic.PromotionOverlapError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, []string{first.ID}, overlap.PromotionIDs)

	// adjacent windows are fine
	_, err = r.UpsertPromotion(ctx, commission.Promotion{
		ProductID: "prod-whey", BonusRate: dec("0.10"), ValidFrom: day(16), ValidUntil: day(20),
	})
	assert.NoError(t, err)

	// editing a promotion does not collide with itself
	first.BonusRate = dec("0.25")
	_, err = r.UpsertPromotion(ctx, first)
	assert.NoError(t, err)
}

func TestUpsertPromotion_InvertedWindow(t *testing.T) {
	r, _ := newTestResolver(t)

	_, err := r.UpsertPromotion(context.Background(), commission.Promotion{
		ProductID: "prod-whey", BonusRate: dec("0.20"), ValidFrom: day(10), ValidUntil: day(1),
	})
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}

func TestResolve_FlagsStoredConflict(t *testing.T) {
	// GIVEN: two overlapping promotions written around the resolver
	r, store := newTestResolver(t)
	ctx := context.Background()
	require.NoError(t, store.SavePromotion(ctx, commission.Promotion{
		ID: "promo-b", ProductID: "prod-whey", BonusRate: dec("0.30"), ValidFrom: day(5), CreatedAt: march10,
	}))
	require.NoError(t, store.SavePromotion(ctx, commission.Promotion{
		ID: "promo-a", ProductID: "prod-whey", BonusRate: dec("0.20"), ValidFrom: day(1), CreatedAt: march10,
	}))

	// WHEN: resolving where both are active
	res, err := r.Resolve(ctx, "prod-whey", dec("10"), march10)

	// THEN: the earliest start wins and the conflict is reported
	require.NoError(t, err)
	assert.Equal(t, "promo-a", res.PromotionID)
	require.NotNil(t, res.Conflict)
	assert.ElementsMatch(t, []string{"promo-a", "promo-b"}, res.Conflict.PromotionIDs)
}

// =============================================================================
// BUNDLE TABLE
// =============================================================================

func TestBundleTable_Totals(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()
	_, err := r.UpsertPromotion(ctx, commission.Promotion{
		ProductID: "prod-whey", BonusRate: dec("0.20"), ValidFrom: day(1), ValidUntil: day(31),
	})
	require.NoError(t, err)

	table, err := r.BundleTable(ctx,
		[]commission.PricedProduct{
			{ProductID: "prod-whey", Name: "Whey", UnitPrice: dec("24.95"), Quantity: 1},
			{ProductID: "prod-rack", Name: "Rack", UnitPrice: dec("699.95"), Quantity: 1},
		},
		[]commission.ServiceLine{{Name: "Coaching", UnitPrice: dec("75"), Quantity: 1}},
		march10)

	require.NoError(t, err)
	require.Len(t, table.Products, 2)
	assert.Equal(t, "77.49", table.ProductCommission.StringFixed(2))
	assert.Equal(t, "75.00", table.ServiceRevenue.StringFixed(2))
	assert.Equal(t, "152.49", table.TotalEarnings.StringFixed(2))
	assert.True(t, table.TotalEarnings.Equal(table.ProductCommission.Add(table.ServiceRevenue)))
}
