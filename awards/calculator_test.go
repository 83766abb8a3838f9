package awards_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/earnings-engine/awards"
	"github.com/warp/earnings-engine/commission"
	"github.com/warp/earnings-engine/delivery"
	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/rewards"
	"github.com/warp/earnings-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	calc       *awards.Calculator
	ledger     *earnings.Ledger
	deliveries *delivery.Service
	points     *rewards.Engine
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{now: time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.points = rewards.NewEngine(store)
	f.points.Now = clock
	resolver := commission.NewResolver(store)
	resolver.Now = clock
	f.ledger = earnings.NewLedger(store, resolver, f.points)
	f.ledger.Now = clock
	f.deliveries = delivery.NewService(store, store, nil)
	f.deliveries.Now = clock
	f.calc = awards.NewCalculator(store, f.points)
	f.calc.Now = clock
	return f
}

func (f *fixture) order(t *testing.T, id, trainerID, clientID string, total int64) earnings.Order {
	o := earnings.Order{
		ID:        id,
		TrainerID: trainerID,
		ClientID:  clientID,
		Total:     decimal.NewFromInt(total),
		LineItems: []earnings.LineItem{
			{ID: id + "-1", Type: earnings.LineProduct, ProductID: "prod-kit", Name: "Kit", Quantity: 1, UnitPrice: decimal.NewFromInt(total)},
		},
	}
	_, err := f.ledger.RecordOrderEarnings(context.Background(), o)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	return o
}

type recordingNotifier struct{ got []awards.Award }

func (n *recordingNotifier) AwardGranted(_ context.Context, a awards.Award) { n.got = append(n.got, a) }

func byType(as []awards.Award, trainerID string) map[awards.AwardType][]awards.Award {
	out := map[awards.AwardType][]awards.Award{}
	for _, a := range as {
		if a.TrainerID == trainerID {
			out[a.Type] = append(out[a.Type], a)
		}
	}
	return out
}

// =============================================================================
// RULES
// =============================================================================

func TestCandidates_TopSellerTieGoesToLowestID(t *testing.T) {
	stats := []awards.TrainerStats{
		{TrainerID: "tr-b", Revenue: decimal.NewFromInt(500), LifetimeRevenue: decimal.NewFromInt(500)},
		{TrainerID: "tr-a", Revenue: decimal.NewFromInt(500), LifetimeRevenue: decimal.NewFromInt(500)},
		{TrainerID: "tr-c", Revenue: decimal.NewFromInt(100), LifetimeRevenue: decimal.NewFromInt(100)},
	}

	got := awards.Candidates(stats, 2025, time.March)
	require.Len(t, got, 1)
	assert.Equal(t, awards.TypeTopSeller, got[0].Type)
	assert.Equal(t, "tr-a", got[0].TrainerID)
	assert.Equal(t, awards.TopSellerPoints, got[0].Points)
	assert.Equal(t, "2025-03", got[0].Key())
}

func TestCandidates_NoRevenueNoTopSeller(t *testing.T) {
	stats := []awards.TrainerStats{{TrainerID: "tr-a", Revenue: decimal.Zero, LifetimeRevenue: decimal.Zero}}
	assert.Empty(t, awards.Candidates(stats, 2025, time.March))
}

func TestCandidates_PerfectDelivery(t *testing.T) {
	stats := []awards.TrainerStats{
		{TrainerID: "tr-a", Deliveries: 5, DeliveriesConfirmed: 5, Revenue: decimal.Zero, LifetimeRevenue: decimal.Zero},
		{TrainerID: "tr-b", Deliveries: 6, DeliveriesConfirmed: 5, Revenue: decimal.Zero, LifetimeRevenue: decimal.Zero},
		{TrainerID: "tr-c", Deliveries: 4, DeliveriesConfirmed: 4, Revenue: decimal.Zero, LifetimeRevenue: decimal.Zero},
	}

	got := awards.Candidates(stats, 2025, time.March)
	require.Len(t, got, 1)
	assert.Equal(t, awards.TypePerfectDelivery, got[0].Type)
	assert.Equal(t, "tr-a", got[0].TrainerID)
}

func TestCandidates_RetentionMaster(t *testing.T) {
	stats := []awards.TrainerStats{
		{TrainerID: "tr-a", Clients: 5, RepeatClients: 4, Revenue: decimal.Zero, LifetimeRevenue: decimal.Zero},
		{TrainerID: "tr-b", Clients: 5, RepeatClients: 3, Revenue: decimal.Zero, LifetimeRevenue: decimal.Zero},
		{TrainerID: "tr-c", Clients: 2, RepeatClients: 2, Revenue: decimal.Zero, LifetimeRevenue: decimal.Zero},
	}

	got := awards.Candidates(stats, 2025, time.March)
	require.Len(t, got, 1)
	assert.Equal(t, awards.TypeRetentionMaster, got[0].Type)
	assert.Equal(t, "tr-a", got[0].TrainerID)
}

func TestCandidates_Milestones(t *testing.T) {
	stats := []awards.TrainerStats{
		{TrainerID: "tr-a", LifetimeClients: 30, LifetimeRevenue: decimal.NewFromInt(6000), Revenue: decimal.Zero},
	}

	got := byType(awards.Candidates(stats, 2025, time.March), "tr-a")

	require.Len(t, got[awards.TypeClientMilestone], 2)
	assert.Equal(t, int64(10), got[awards.TypeClientMilestone][0].Milestone)
	assert.Equal(t, int64(100), got[awards.TypeClientMilestone][0].Points)
	assert.Equal(t, int64(250), got[awards.TypeClientMilestone][1].Points)
	assert.Equal(t, "milestone:25", got[awards.TypeClientMilestone][1].Key())

	require.Len(t, got[awards.TypeRevenueMilestone], 2)
	assert.Equal(t, int64(100), got[awards.TypeRevenueMilestone][0].Points)
	assert.Equal(t, int64(500), got[awards.TypeRevenueMilestone][1].Points)
}

// =============================================================================
// PROCESS
// =============================================================================

func TestProcessMonthlyAwards_GrantsAndPays(t *testing.T) {
	// GIVEN: tr-1 sold 10 orders of 100 to 10 clients in March; tr-2 one order
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		f.order(t, fmt.Sprintf("o-%d", i), "tr-1", fmt.Sprintf("c-%d", i), 100)
	}
	f.order(t, "o-x", "tr-2", "c-x", 50)
	before := f.points.Summary(ctx, "tr-1").Account.TotalPoints

	notifier := &recordingNotifier{}
	f.calc.Notifier = notifier

	// WHEN: March is processed
	res, err := f.calc.ProcessMonthlyAwards(ctx, 2025, time.March)

	// THEN: top seller, 10-client and 1k-revenue milestones for tr-1
	require.NoError(t, err)
	got := byType(res.Granted, "tr-1")
	assert.Len(t, got[awards.TypeTopSeller], 1)
	assert.Len(t, got[awards.TypeClientMilestone], 1)
	assert.Len(t, got[awards.TypeRevenueMilestone], 1)
	assert.Empty(t, byType(res.Granted, "tr-2"))
	assert.Len(t, notifier.got, 3)

	assert.Equal(t, awards.RunCompleted, res.Run.Status)
	assert.Equal(t, 3, res.Run.AwardsGranted)
	assert.Equal(t, int64(500+100+100), res.Run.PointsGranted)

	after := f.points.Summary(ctx, "tr-1").Account.TotalPoints
	assert.Equal(t, before+700, after)
}

func TestProcessMonthlyAwards_Rerun(t *testing.T) {
	// GIVEN: March already processed
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		f.order(t, fmt.Sprintf("o-%d", i), "tr-1", fmt.Sprintf("c-%d", i), 100)
	}
	first, err := f.calc.ProcessMonthlyAwards(ctx, 2025, time.March)
	require.NoError(t, err)
	points := f.points.Summary(ctx, "tr-1").Account.TotalPoints

	// WHEN: it runs again
	f.now = f.now.Add(time.Hour)
	again, err := f.calc.ProcessMonthlyAwards(ctx, 2025, time.March)

	// THEN: nothing new is granted or paid
	require.NoError(t, err)
	assert.Empty(t, again.Granted)
	assert.Equal(t, len(first.Granted), again.AlreadyHeld)
	assert.Equal(t, points, f.points.Summary(ctx, "tr-1").Account.TotalPoints)

	summary := f.calc.Summary(ctx, 2025, time.March)
	assert.Len(t, summary.Awards, len(first.Granted))
	require.NotNil(t, summary.LastRun)
	assert.Equal(t, again.Run.ID, summary.LastRun.ID)
	assert.Equal(t, awards.RunCompleted, summary.LastRun.Status)
}

func TestProcessMonthlyAwards_MilestonesOnceEver(t *testing.T) {
	// GIVEN: the 10-client milestone reached in March
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		f.order(t, fmt.Sprintf("o-%d", i), "tr-1", fmt.Sprintf("c-%d", i), 100)
	}
	_, err := f.calc.ProcessMonthlyAwards(ctx, 2025, time.March)
	require.NoError(t, err)

	// WHEN: April brings one more order and is processed
	f.now = time.Date(2025, time.April, 3, 10, 0, 0, 0, time.UTC)
	f.order(t, "o-apr", "tr-1", "c-0", 100)
	res, err := f.calc.ProcessMonthlyAwards(ctx, 2025, time.April)

	// THEN: only April's top seller is new
	require.NoError(t, err)
	got := byType(res.Granted, "tr-1")
	assert.Len(t, got[awards.TypeTopSeller], 1)
	assert.Empty(t, got[awards.TypeClientMilestone])
	assert.Empty(t, got[awards.TypeRevenueMilestone])

	all := f.calc.ListForTrainer(ctx, "tr-1")
	assert.Len(t, all, 4)
}

func TestProcessMonthlyAwards_PerfectDeliveryFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		o := f.order(t, fmt.Sprintf("o-%d", i), "tr-1", "c-1", 20)
		ds, err := f.deliveries.CreateForOrder(ctx, o)
		require.NoError(t, err)
		require.Len(t, ds, 1)
		_, err = f.deliveries.MarkDelivered(ctx, ds[0].ID, "tr-1", delivery.DeliveredDetails{})
		require.NoError(t, err)
		_, err = f.deliveries.ConfirmReceipt(ctx, ds[0].ID, "c-1", "")
		require.NoError(t, err)
	}

	res, err := f.calc.ProcessMonthlyAwards(ctx, 2025, time.March)
	require.NoError(t, err)
	got := byType(res.Granted, "tr-1")
	assert.Len(t, got[awards.TypePerfectDelivery], 1)
	// one client with five orders: 100% repeat, but fewer than three clients
	assert.Empty(t, got[awards.TypeRetentionMaster])
}

func TestProcessMonthlyAwards_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.calc.ProcessMonthlyAwards(context.Background(), 2025, time.Month(13))
	assert.ErrorIs(t, err, generic.ErrValidation)
}
