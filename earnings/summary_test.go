package earnings_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/earnings-engine/generic"
)

func TestSummary_ComparesWithPreviousMonth(t *testing.T) {
	// GIVEN: one order in February and two in March
	f := newFixture(t)
	ctx := context.Background()

	f.now = time.Date(2025, time.February, 20, 10, 0, 0, 0, time.UTC)
	_, err := f.ledger.RecordOrderEarnings(ctx, serviceOrder("o-feb", "c-1", "100"))
	require.NoError(t, err)

	f.now = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	_, err = f.ledger.RecordOrderEarnings(ctx, serviceOrder("o-mar-1", "c-1", "100"))
	require.NoError(t, err)
	f.now = time.Date(2025, time.March, 20, 10, 0, 0, 0, time.UTC)
	_, err = f.ledger.RecordOrderEarnings(ctx, sampleOrder("o-mar-2", "c-2"))
	require.NoError(t, err)

	// WHEN: summarizing March
	s := f.ledger.Summary(ctx, "tr-1", generic.MonthPeriod(2025, time.March))

	// THEN
	assert.Equal(t, 2, s.BundlesSold)
	assert.Equal(t, "252.49", s.TotalEarnings.StringFixed(2))
	assert.Equal(t, "77.49", s.ProductCommissions.StringFixed(2))
	assert.Equal(t, "175.00", s.ServiceRevenue.StringFixed(2))
	assert.True(t, s.TotalEarnings.Equal(s.ProductCommissions.Add(s.ServiceRevenue)))

	require.NotNil(t, s.Previous)
	require.NotNil(t, s.Change)
	assert.Equal(t, 1, s.Previous.BundlesSold)
	assert.Equal(t, "100.00", s.Previous.TotalEarnings.StringFixed(2))
	assert.Equal(t, "152.49", s.Change.TotalEarnings.StringFixed(2))
	assert.Equal(t, "100.00", s.Change.BundlesSold.StringFixed(2))
}

func TestSummary_AllTimeHasNoComparison(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.RecordOrderEarnings(ctx, serviceOrder("o-1", "c-1", "10"))
	require.NoError(t, err)

	p, err := generic.PeriodFor(generic.PeriodAll, f.now)
	require.NoError(t, err)
	s := f.ledger.Summary(ctx, "tr-1", p)

	assert.Equal(t, 1, s.BundlesSold)
	assert.Nil(t, s.Previous)
	assert.Nil(t, s.Change)
}

func TestSummary_UnknownTrainerIsZero(t *testing.T) {
	f := newFixture(t)

	s := f.ledger.Summary(context.Background(), "nobody", generic.MonthPeriod(2025, time.March))
	assert.Equal(t, 0, s.BundlesSold)
	assert.True(t, s.TotalEarnings.IsZero())
	require.NotNil(t, s.Change)
	assert.True(t, s.Change.TotalEarnings.IsZero())
}

func TestBreakdown_GroupsLinesAndDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.now = time.Date(2025, time.March, 11, 8, 0, 0, 0, time.UTC)
	_, err := f.ledger.RecordOrderEarnings(ctx, sampleOrder("o-1", "c-1"))
	require.NoError(t, err)
	f.now = time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC)
	_, err = f.ledger.RecordOrderEarnings(ctx, sampleOrder("o-2", "c-2"))
	require.NoError(t, err)

	week, err := generic.PeriodFor(generic.PeriodWeek, f.now)
	require.NoError(t, err)
	b := f.ledger.Breakdown(ctx, "tr-1", week)

	// services
	require.Len(t, b.ByService, 1)
	assert.Equal(t, "Coaching", b.ByService[0].Name)
	assert.Equal(t, 2, b.ByService[0].Quantity)
	assert.Equal(t, "150.00", b.ByService[0].Revenue.StringFixed(2))
	assert.Equal(t, "100.00", b.ByService[0].Percent.StringFixed(2))

	// products, highest commission first
	require.Len(t, b.ByProduct, 2)
	assert.Equal(t, "prod-rack", b.ByProduct[0].ProductID)
	assert.Equal(t, "140.00", b.ByProduct[0].Commission.StringFixed(2))
	assert.Equal(t, "prod-whey", b.ByProduct[1].ProductID)
	assert.Equal(t, "14.98", b.ByProduct[1].Commission.StringFixed(2))
	assert.Equal(t, "49.90", b.ByProduct[1].Sales.StringFixed(2))

	// every day of the week, empty ones included
	require.Len(t, b.ByDay, 7)
	assert.Equal(t, "2025-03-10", b.ByDay[0].Date)
	assert.True(t, b.ByDay[0].Total.IsZero())
	assert.Equal(t, "2025-03-11", b.ByDay[1].Date)
	assert.Equal(t, "152.49", b.ByDay[1].Total.StringFixed(2))
	assert.Equal(t, "152.49", b.ByDay[2].Total.StringFixed(2))
}

func TestHistory_Pages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"o-1", "o-2", "o-3"} {
		_, err := f.ledger.RecordOrderEarnings(ctx, serviceOrder(id, "c-1", "10"))
		require.NoError(t, err)
		f.advance(time.Minute)
	}

	page, total := f.ledger.History(ctx, "tr-1", 2, 0)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "o-3", page[0].OrderID)
	assert.Equal(t, "o-2", page[1].OrderID)

	empty, total := f.ledger.History(ctx, "nobody", 0, 0)
	assert.Equal(t, 0, total)
	assert.Empty(t, empty)
}
