package rewards

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/metrics"
)

// =============================================================================
// STORE
// =============================================================================

// ApplyFunc receives the trainer's current account, or the zero Account with
// exists=false when there is none yet, and returns the account to persist
// plus the transaction to append.
type ApplyFunc func(acct Account, exists bool) (Account, PointTransaction, error)

// Store persists accounts and the append-only transaction ledger.
type Store interface {
	// ApplyPoints runs fn and writes its result atomically while holding the
	// trainer's account exclusively, so balanceBefore always equals the
	// previous balanceAfter. When idempotencyKey is non-empty and already
	// recorded, fn is not called and the existing transaction is returned
	// with ErrDuplicateIdempotencyKey.
	ApplyPoints(ctx context.Context, trainerID, idempotencyKey string, fn ApplyFunc) (PointTransaction, Account, error)

	GetAccount(ctx context.Context, trainerID string) (*Account, error)
	ListPointTransactions(ctx context.Context, trainerID string, limit, offset int) ([]PointTransaction, int, error)
}

// =============================================================================
// ENGINE
// =============================================================================

// AwardInput describes one signed points movement.
type AwardInput struct {
	TrainerID      string
	Points         int64
	Type           TransactionType
	ReferenceType  string
	ReferenceID    string
	Description    string
	IdempotencyKey string

	// Revenue is added to the year-to-date revenue counter (bundle sales).
	Revenue decimal.Decimal
}

type AwardResult struct {
	Transaction   PointTransaction
	BalanceBefore int64
	BalanceAfter  int64
	PreviousTier  Tier
	NewTier       Tier
	// Duplicate is true when the idempotency key had already been applied;
	// Transaction is then the original one.
	Duplicate bool
}

type Engine struct {
	Store Store
	Tiers TierTable
	Now   generic.Clock
}

func NewEngine(store Store) *Engine {
	return &Engine{Store: store, Tiers: DefaultTierTable(), Now: generic.SystemClock}
}

// Award appends a transaction and updates the account. Positive points grow
// totalPoints, lifetimePoints and yearToDatePoints; negative points only
// reduce totalPoints. Debits other than adjustments may not overdraw.
func (e *Engine) Award(ctx context.Context, in AwardInput) (AwardResult, error) {
	if err := validateAward(in); err != nil {
		return AwardResult{}, err
	}
	now := generic.NowOr(e.Now)

	var previous Tier
	tx, acct, err := e.Store.ApplyPoints(ctx, in.TrainerID, in.IdempotencyKey, func(acct Account, exists bool) (Account, PointTransaction, error) {
		if !exists {
			acct = NewAccount(in.TrainerID, now)
		}
		previous = acct.CurrentTier
		before := acct.TotalPoints
		after := before + in.Points
		if in.Points < 0 && in.Type != TxAdjustment && after < 0 {
			return Account{}, PointTransaction{}, &generic.InsufficientBalanceError{
				TrainerID: in.TrainerID, Available: before, Requested: -in.Points,
			}
		}

		if acct.YearToDateYear != now.Year() {
			acct.YearToDateYear = now.Year()
			acct.YearToDatePoints = 0
			acct.YearToDateRevenue = decimal.Zero
		}
		acct.TotalPoints = after
		if in.Points > 0 {
			acct.LifetimePoints += in.Points
			acct.YearToDatePoints += in.Points
		}
		if in.Revenue.IsPositive() {
			acct.YearToDateRevenue = acct.YearToDateRevenue.Add(in.Revenue)
		}
		acct.CurrentTier = e.Tiers.TierFor(acct.LifetimePoints)
		acct.UpdatedAt = now

		return acct, PointTransaction{
			ID:              generic.NewID("ptx"),
			TrainerID:       in.TrainerID,
			TransactionType: in.Type,
			Points:          in.Points,
			ReferenceType:   in.ReferenceType,
			ReferenceID:     in.ReferenceID,
			Description:     in.Description,
			BalanceBefore:   before,
			BalanceAfter:    after,
			IdempotencyKey:  in.IdempotencyKey,
			CreatedAt:       now,
		}, nil
	})

	if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
		return AwardResult{
			Transaction:   tx,
			BalanceBefore: tx.BalanceBefore,
			BalanceAfter:  tx.BalanceAfter,
			PreviousTier:  acct.CurrentTier,
			NewTier:       acct.CurrentTier,
			Duplicate:     true,
		}, nil
	}
	if err != nil {
		if generic.IsClientError(err) {
			return AwardResult{}, err
		}
		return AwardResult{}, generic.Unavailable("apply points", err)
	}

	metrics.PointsAwarded.WithLabelValues(string(in.Type)).Add(float64(in.Points))
	if acct.CurrentTier != previous && previous != "" {
		metrics.TierPromotions.WithLabelValues(string(acct.CurrentTier)).Inc()
		zerolog.Ctx(ctx).Info().
			Str("trainer_id", in.TrainerID).
			Str("from", string(previous)).
			Str("to", string(acct.CurrentTier)).
			Int64("lifetime_points", acct.LifetimePoints).
			Msg("trainer reached new tier")
	}

	return AwardResult{
		Transaction:   tx,
		BalanceBefore: tx.BalanceBefore,
		BalanceAfter:  tx.BalanceAfter,
		PreviousTier:  previous,
		NewTier:       acct.CurrentTier,
	}, nil
}

// Redeem spends points. It fails with InsufficientBalanceError on overdraw.
func (e *Engine) Redeem(ctx context.Context, trainerID string, points int64, referenceID, description, idempotencyKey string) (AwardResult, error) {
	if points <= 0 {
		return AwardResult{}, generic.Invalid("points", "must be positive")
	}
	return e.Award(ctx, AwardInput{
		TrainerID:      trainerID,
		Points:         -points,
		Type:           TxRedemption,
		ReferenceType:  "redemption",
		ReferenceID:    referenceID,
		Description:    description,
		IdempotencyKey: idempotencyKey,
	})
}

func validateAward(in AwardInput) error {
	if in.TrainerID == "" {
		return generic.Invalid("trainer_id", "required")
	}
	if !in.Type.Valid() {
		return generic.Invalid("transaction_type", "unknown type "+string(in.Type))
	}
	if in.Points == 0 {
		return generic.Invalid("points", "must not be zero")
	}
	if in.Type.IsDebit() && in.Points > 0 {
		return generic.Invalid("points", string(in.Type)+" must be negative")
	}
	if !in.Type.IsDebit() && in.Type != TxAdjustment && in.Points < 0 {
		return generic.Invalid("points", string(in.Type)+" must be positive")
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

type Summary struct {
	Account  Account
	NextTier NextTier
	Benefits Benefits
}

// Summary returns the account with tier progress. A trainer with no
// account yet gets the bronze starting state. Read failures degrade to
// that same empty state.
func (e *Engine) Summary(ctx context.Context, trainerID string) Summary {
	acct, err := e.Store.GetAccount(ctx, trainerID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("trainer_id", trainerID).Msg("points summary degraded")
	}
	a := NewAccount(trainerID, generic.NowOr(e.Now))
	if acct != nil {
		a = *acct
	}
	return Summary{
		Account:  a,
		NextTier: e.Tiers.NextTierInfo(a.CurrentTier, a.LifetimePoints),
		Benefits: e.Tiers.Benefits[a.CurrentTier],
	}
}

// History pages the trainer's transactions, newest first.
func (e *Engine) History(ctx context.Context, trainerID string, limit, offset int) ([]PointTransaction, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	txs, total, err := e.Store.ListPointTransactions(ctx, trainerID, limit, offset)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("trainer_id", trainerID).Msg("points history degraded")
		return []PointTransaction{}, 0
	}
	return txs, total
}
