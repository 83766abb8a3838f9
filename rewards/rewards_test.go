package rewards_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/rewards"
	"github.com/warp/earnings-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestEngine(t *testing.T) (*rewards.Engine, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := rewards.NewEngine(store)
	engine.Now = func() time.Time { return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC) }
	return engine, store
}

func award(trainerID string, pts int64, txType rewards.TransactionType, key string) rewards.AwardInput {
	return rewards.AwardInput{
		TrainerID:      trainerID,
		Points:         pts,
		Type:           txType,
		ReferenceType:  "test",
		ReferenceID:    key,
		IdempotencyKey: key,
	}
}

// =============================================================================
// TIERS
// =============================================================================

func TestCalculateTier_Thresholds(t *testing.T) {
	cases := []struct {
		lifetime int64
		want     rewards.Tier
	}{
		{0, rewards.TierBronze},
		{4999, rewards.TierBronze},
		{5000, rewards.TierSilver},
		{14999, rewards.TierSilver},
		{15000, rewards.TierGold},
		{34999, rewards.TierGold},
		{35000, rewards.TierPlatinum},
		{1_000_000, rewards.TierPlatinum},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rewards.CalculateTier(tc.lifetime), "lifetime %d", tc.lifetime)
	}
}

func TestCalculateTier_Monotonic(t *testing.T) {
	rank := map[rewards.Tier]int{}
	for i, tier := range rewards.Tiers {
		rank[tier] = i
	}
	prev := rewards.CalculateTier(0)
	for lifetime := int64(0); lifetime <= 40000; lifetime += 250 {
		tier := rewards.CalculateTier(lifetime)
		assert.GreaterOrEqual(t, rank[tier], rank[prev], "tier dropped at %d", lifetime)
		prev = tier
	}
}

func TestNextTierInfo_HalfwayToSilver(t *testing.T) {
	info := rewards.NextTierInfo(rewards.TierBronze, 2500)

	require.NotNil(t, info.NextTier)
	assert.Equal(t, rewards.TierSilver, *info.NextTier)
	assert.Equal(t, int64(2500), info.PointsNeeded)
	assert.True(t, info.Progress.Equal(decimal.NewFromInt(50)), "progress %s", info.Progress)
}

func TestNextTierInfo_Platinum(t *testing.T) {
	info := rewards.NextTierInfo(rewards.TierPlatinum, 50000)

	assert.Nil(t, info.NextTier)
	assert.Equal(t, int64(0), info.PointsNeeded)
	assert.True(t, info.Progress.Equal(decimal.NewFromInt(100)))
}

// =============================================================================
// AWARDS
// =============================================================================

func TestAward_LazilyCreatesAccount(t *testing.T) {
	// GIVEN: a trainer with no account
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// WHEN: the first award arrives
	res, err := engine.Award(ctx, award("tr-1", 150, rewards.TxBundleSale, "order:o1:bundle_sale"))

	// THEN: the account starts at zero and holds the award
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.BalanceBefore)
	assert.Equal(t, int64(150), res.BalanceAfter)
	assert.Equal(t, rewards.TierBronze, res.NewTier)

	s := engine.Summary(ctx, "tr-1")
	assert.Equal(t, int64(150), s.Account.TotalPoints)
	assert.Equal(t, int64(150), s.Account.LifetimePoints)
	assert.Equal(t, int64(150), s.Account.YearToDatePoints)
}

func TestAward_NewAccountUsesEngineClock(t *testing.T) {
	// GIVEN: an engine whose clock is in 2023
	engine, store := newTestEngine(t)
	at := time.Date(2023, time.June, 1, 8, 30, 0, 0, time.UTC)
	engine.Now = func() time.Time { return at }
	ctx := context.Background()

	// WHEN: the trainer's first award arrives
	_, err := engine.Award(ctx, award("tr-1", 40, rewards.TxBundleSale, "order:o1:bundle_sale"))
	require.NoError(t, err)

	// THEN: the stored account is dated by that clock
	acct, err := store.GetAccount(ctx, "tr-1")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.True(t, acct.CreatedAt.Equal(at), "created_at %s", acct.CreatedAt)
	assert.True(t, acct.UpdatedAt.Equal(at))
	assert.Equal(t, 2023, acct.YearToDateYear)
	assert.Equal(t, int64(40), acct.YearToDatePoints)
}

func TestAward_BalanceChain(t *testing.T) {
	// GIVEN: a sequence of credits and a debit
	engine, store := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Award(ctx, award("tr-1", 150, rewards.TxBundleSale, "k1"))
	require.NoError(t, err)
	_, err = engine.Award(ctx, award("tr-1", 100, rewards.TxNewClientBonus, "k2"))
	require.NoError(t, err)
	_, err = engine.Redeem(ctx, "tr-1", 40, "gift-1", "gift card", "k3")
	require.NoError(t, err)
	_, err = engine.Award(ctx, award("tr-1", 50, rewards.TxClientRetention, "k4"))
	require.NoError(t, err)

	// THEN: every transaction starts where the previous one ended
	txs, err := store.PointTransactionsInOrder(ctx, "tr-1")
	require.NoError(t, err)
	require.Len(t, txs, 4)
	var prev int64
	for _, tx := range txs {
		assert.Equal(t, prev, tx.BalanceBefore)
		assert.Equal(t, tx.BalanceBefore+tx.Points, tx.BalanceAfter)
		prev = tx.BalanceAfter
	}
	assert.Equal(t, int64(260), prev)

	// AND: redemption does not reduce lifetime points
	s := engine.Summary(ctx, "tr-1")
	assert.Equal(t, int64(260), s.Account.TotalPoints)
	assert.Equal(t, int64(300), s.Account.LifetimePoints)
}

func TestAward_DuplicateKeyIsNoOp(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.Award(ctx, award("tr-1", 100, rewards.TxNewClientBonus, "order:o1:client_bonus"))
	require.NoError(t, err)

	// WHEN: the same key is awarded again
	again, err := engine.Award(ctx, award("tr-1", 100, rewards.TxNewClientBonus, "order:o1:client_bonus"))

	// THEN: nothing is appended and the original transaction comes back
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Transaction.ID, again.Transaction.ID)

	txs, err := store.PointTransactionsInOrder(ctx, "tr-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, int64(100), engine.Summary(ctx, "tr-1").Account.TotalPoints)
}

func TestAward_TierPromotion(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Award(ctx, award("tr-1", 4900, rewards.TxAchievement, "a1"))
	require.NoError(t, err)

	res, err := engine.Award(ctx, award("tr-1", 200, rewards.TxAchievement, "a2"))
	require.NoError(t, err)
	assert.Equal(t, rewards.TierBronze, res.PreviousTier)
	assert.Equal(t, rewards.TierSilver, res.NewTier)

	s := engine.Summary(ctx, "tr-1")
	assert.Equal(t, rewards.TierSilver, s.Account.CurrentTier)
	assert.True(t, s.Benefits.PrioritySupport)
}

func TestAward_Validation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Award(ctx, award("", 10, rewards.TxBundleSale, "x"))
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = engine.Award(ctx, award("tr-1", 0, rewards.TxBundleSale, "x"))
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = engine.Award(ctx, award("tr-1", -10, rewards.TxBundleSale, "x"))
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = engine.Award(ctx, award("tr-1", 10, rewards.TxRedemption, "x"))
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// REDEMPTION
// =============================================================================

func TestRedeem_Overdraw(t *testing.T) {
	// GIVEN: 100 points available
	engine, store := newTestEngine(t)
	ctx := context.Background()
	_, err := engine.Award(ctx, award("tr-1", 100, rewards.TxNewClientBonus, "k1"))
	require.NoError(t, err)

	// WHEN: redeeming 150
	_, err = engine.Redeem(ctx, "tr-1", 150, "gift-1", "gift card", "redeem-1")

	// THEN: rejected, and nothing changed
	var insufficient *generic.InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(100), insufficient.Available)
	assert.Equal(t, int64(150), insufficient.Requested)

	txs, err := store.PointTransactionsInOrder(ctx, "tr-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, int64(100), engine.Summary(ctx, "tr-1").Account.TotalPoints)
}

func TestAdjustment_MayGoNegative(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := engine.Award(ctx, award("tr-1", -30, rewards.TxAdjustment, "adj-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(-30), res.BalanceAfter)
	assert.Equal(t, int64(0), engine.Summary(ctx, "tr-1").Account.LifetimePoints)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestAward_ConcurrentWritesKeepChain(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Award(ctx, rewards.AwardInput{
				TrainerID:      "tr-1",
				Points:         10,
				Type:           rewards.TxBundleSale,
				IdempotencyKey: "concurrent-" + string(rune('a'+i)),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	txs, err := store.PointTransactionsInOrder(ctx, "tr-1")
	require.NoError(t, err)
	require.Len(t, txs, 20)
	var prev int64
	for _, tx := range txs {
		assert.Equal(t, prev, tx.BalanceBefore)
		prev = tx.BalanceAfter
	}
	assert.Equal(t, int64(200), prev)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHistory_NewestFirst(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	for _, k := range []string{"k1", "k2", "k3"} {
		_, err := engine.Award(ctx, award("tr-1", 10, rewards.TxBundleSale, k))
		require.NoError(t, err)
	}

	page, total := engine.History(ctx, "tr-1", 2, 0)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "k3", page[0].IdempotencyKey)
	assert.Equal(t, "k2", page[1].IdempotencyKey)

	rest, _ := engine.History(ctx, "tr-1", 2, 2)
	require.Len(t, rest, 1)
	assert.Equal(t, "k1", rest[0].IdempotencyKey)
}

func TestSummary_UnknownTrainerIsBronze(t *testing.T) {
	engine, _ := newTestEngine(t)

	s := engine.Summary(context.Background(), "nobody")
	assert.Equal(t, rewards.TierBronze, s.Account.CurrentTier)
	assert.Equal(t, int64(0), s.Account.TotalPoints)
	require.NotNil(t, s.NextTier.NextTier)
	assert.Equal(t, int64(5000), s.NextTier.PointsNeeded)
}
