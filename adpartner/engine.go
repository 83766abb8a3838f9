package adpartner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/metrics"
	"github.com/warp/earnings-engine/rewards"
)

// Awarder is the slice of the points engine the engine uses.
type Awarder interface {
	Award(ctx context.Context, in rewards.AwardInput) (rewards.AwardResult, error)
}

type Engine struct {
	Store      Store
	Packages   PackageTable
	Points     Awarder
	PeriodDays int
	Now        generic.Clock
}

func NewEngine(store Store, points Awarder) *Engine {
	return &Engine{
		Store:      store,
		Packages:   DefaultPackages(),
		Points:     points,
		PeriodDays: DefaultPeriodDays,
		Now:        generic.SystemClock,
	}
}

func (e *Engine) period() time.Duration {
	days := e.PeriodDays
	if days <= 0 {
		days = DefaultPeriodDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// CreateInput are the caller-supplied fields of a new partnership.
// A zero StartDate defaults to now. A zero EndDate makes the partnership
// renew period by period until cancelled; otherwise billing stops at EndDate.
type CreateInput struct {
	TrainerID  string
	BusinessID string
	Tier       PackageTier
	StartDate  time.Time
	EndDate    time.Time
}

// Create snapshots the tier's package onto a new pending partnership.
func (e *Engine) Create(ctx context.Context, in CreateInput) (Partnership, error) {
	if in.TrainerID == "" {
		return Partnership{}, generic.Invalid("trainer_id", "required")
	}
	if in.BusinessID == "" {
		return Partnership{}, generic.Invalid("business_id", "required")
	}
	if !in.Tier.Valid() {
		return Partnership{}, generic.Invalid("package_tier", "unknown tier "+string(in.Tier))
	}
	pkg, ok := e.Packages[in.Tier]
	if !ok {
		return Partnership{}, generic.Invalid("package_tier", "tier not offered: "+string(in.Tier))
	}

	now := generic.NowOr(e.Now)
	start := in.StartDate
	if start.IsZero() {
		start = now
	}
	autoRenew := in.EndDate.IsZero()
	end := in.EndDate
	if autoRenew {
		end = start.Add(e.period())
	}
	if !end.After(start) {
		return Partnership{}, generic.ErrInvalidPeriod
	}

	p := Partnership{
		ID:                    generic.NewID("adp"),
		TrainerID:             in.TrainerID,
		BusinessID:            in.BusinessID,
		PackageTier:           pkg.Tier,
		MonthlyFee:            pkg.MonthlyFee,
		TrainerCommissionRate: pkg.CommissionRate,
		BonusPointsAwarded:    pkg.BonusPoints,
		Status:                StatusPending,
		StartDate:             start,
		EndDate:               end,
		AutoRenew:             autoRenew,
		CreatedAt:             now,
	}
	p.RenewalDate = e.periodEnd(p, start)
	if err := e.Store.InsertPartnership(ctx, p); err != nil {
		return Partnership{}, generic.Unavailable("insert partnership", err)
	}
	return p, nil
}

// periodEnd is the end of the billing period starting at start. Fixed-term
// partnerships never bill past their end date.
func (e *Engine) periodEnd(p Partnership, start time.Time) time.Time {
	end := start.Add(e.period())
	if !p.AutoRenew && end.After(p.EndDate) {
		return p.EndDate
	}
	return end
}

// earningFor builds the AdEarning of one period from the partnership snapshot.
func earningFor(p Partnership, start, end time.Time, bonus int64, now time.Time) Earning {
	return Earning{
		ID:               generic.NewID("ade"),
		TrainerID:        p.TrainerID,
		PartnershipID:    p.ID,
		BusinessID:       p.BusinessID,
		PeriodStart:      start,
		PeriodEnd:        end,
		MonthlyFee:       p.MonthlyFee,
		CommissionRate:   p.TrainerCommissionRate,
		CommissionEarned: Package{MonthlyFee: p.MonthlyFee, CommissionRate: p.TrainerCommissionRate}.Commission(),
		BonusPoints:      bonus,
		Status:           EarningPending,
		CreatedAt:        now,
	}
}

// Approve activates a pending partnership, materializes the earning of its
// first period and awards the package bonus points. Approving anything but
// a pending partnership reports Applied=false.
func (e *Engine) Approve(ctx context.Context, id, approverID string) (generic.Result[Status], error) {
	if approverID == "" {
		return generic.Result[Status]{}, generic.Invalid("approver_id", "required")
	}
	p, err := e.Store.GetPartnership(ctx, id)
	if err != nil {
		return generic.Result[Status]{}, generic.Unavailable("load partnership", err)
	}
	if p == nil {
		return generic.Result[Status]{}, nil
	}

	now := generic.NowOr(e.Now)
	first := earningFor(*p, p.StartDate, e.periodEnd(*p, p.StartDate), p.BonusPointsAwarded, now)
	applied, err := e.Store.ActivatePartnership(ctx, id, approverID, now, first)
	if err != nil {
		return generic.Result[Status]{}, generic.Unavailable("activate partnership", err)
	}
	if !applied {
		cur, err := e.Store.GetPartnership(ctx, id)
		if err != nil || cur == nil {
			return generic.Result[Status]{}, generic.Unavailable("load partnership", err)
		}
		return generic.Result[Status]{Applied: false, Current: cur.Status}, nil
	}
	metrics.AdEarningsMaterialized.Inc()

	if e.Points != nil && p.BonusPointsAwarded > 0 {
		_, err := e.Points.Award(ctx, rewards.AwardInput{
			TrainerID:      p.TrainerID,
			Points:         p.BonusPointsAwarded,
			Type:           rewards.TxAdPartnership,
			ReferenceType:  "ad_partnership",
			ReferenceID:    p.ID,
			Description:    fmt.Sprintf("%s ad partnership with %s", p.PackageTier, p.BusinessID),
			IdempotencyKey: "partnership:" + p.ID + ":bonus",
		})
		if err != nil {
			return generic.Result[Status]{Applied: true, Current: StatusActive}, err
		}
	}

	zerolog.Ctx(ctx).Info().
		Str("partnership_id", p.ID).
		Str("trainer_id", p.TrainerID).
		Str("approved_by", approverID).
		Str("commission", first.CommissionEarned.StringFixed(2)).
		Msg("ad partnership approved")
	return generic.Result[Status]{Applied: true, Current: StatusActive}, nil
}

// Cancel ends a pending or active partnership. Earnings already
// materialized are kept.
func (e *Engine) Cancel(ctx context.Context, id string) (generic.Result[Status], error) {
	applied, err := e.Store.CancelPartnership(ctx, id, generic.NowOr(e.Now))
	if err != nil {
		return generic.Result[Status]{}, generic.Unavailable("cancel partnership", err)
	}
	p, err := e.Store.GetPartnership(ctx, id)
	if err != nil {
		return generic.Result[Status]{}, generic.Unavailable("load partnership", err)
	}
	if p == nil {
		return generic.Result[Status]{}, nil
	}
	return generic.Result[Status]{Applied: applied, Current: p.Status}, nil
}

// BillDuePeriods renews every active partnership whose renewal date is at
// or before now, materializing one earning per elapsed period. Fixed-term
// partnerships stop at their end date. Re-running it creates nothing new.
// It returns the number of earnings created.
func (e *Engine) BillDuePeriods(ctx context.Context) (int, error) {
	now := generic.NowOr(e.Now)
	active, err := e.Store.ListPartnerships(ctx, Filter{Status: StatusActive})
	if err != nil {
		return 0, generic.Unavailable("list partnerships", err)
	}

	created := 0
	for _, p := range active {
		due := p.RenewalDate
		for !due.After(now) {
			if !p.AutoRenew && !due.Before(p.EndDate) {
				break
			}
			next := earningFor(p, due, e.periodEnd(p, due), 0, now)
			applied, err := e.Store.RenewPartnership(ctx, p.ID, due, next)
			if err != nil {
				return created, generic.Unavailable("renew partnership", err)
			}
			if !applied {
				// another run renewed it, or it was cancelled meanwhile
				break
			}
			created++
			metrics.AdEarningsMaterialized.Inc()
			due = next.PeriodEnd
		}
	}
	if created > 0 {
		zerolog.Ctx(ctx).Info().Int("earnings", created).Msg("ad partnership periods billed")
	}
	return created, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (e *Engine) Get(ctx context.Context, id string) (*Partnership, error) {
	p, err := e.Store.GetPartnership(ctx, id)
	if err != nil {
		return nil, generic.Unavailable("load partnership", err)
	}
	return p, nil
}

// ListPending is the approval queue.
func (e *Engine) ListPending(ctx context.Context) []Partnership {
	return e.list(ctx, Filter{Status: StatusPending})
}

func (e *Engine) ListForTrainer(ctx context.Context, trainerID string) []Partnership {
	return e.list(ctx, Filter{TrainerID: trainerID})
}

func (e *Engine) list(ctx context.Context, f Filter) []Partnership {
	ps, err := e.Store.ListPartnerships(ctx, f)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("partnership list degraded to empty result")
		return []Partnership{}
	}
	return ps
}

type Summary struct {
	TrainerID          string
	TotalEarned        decimal.Decimal
	TotalBonusPoints   int64
	ActivePartnerships int
	PendingEarnings    decimal.Decimal
	Earnings           []Earning
}

// Summary totals the trainer's ad earnings. Pending earnings are those not
// yet confirmed by the business.
func (e *Engine) Summary(ctx context.Context, trainerID string) Summary {
	s := Summary{TrainerID: trainerID, TotalEarned: decimal.Zero, PendingEarnings: decimal.Zero, Earnings: []Earning{}}

	earnings, err := e.Store.ListAdEarnings(ctx, trainerID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("trainer_id", trainerID).Msg("ad earnings summary degraded")
	} else {
		s.Earnings = earnings
	}
	for _, ae := range s.Earnings {
		s.TotalEarned = s.TotalEarned.Add(ae.CommissionEarned)
		s.TotalBonusPoints += ae.BonusPoints
		if ae.Status == EarningPending {
			s.PendingEarnings = s.PendingEarnings.Add(ae.CommissionEarned)
		}
	}
	for _, p := range e.ListForTrainer(ctx, trainerID) {
		if p.Status == StatusActive {
			s.ActivePartnerships++
		}
	}
	return s
}
