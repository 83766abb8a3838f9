package earnings

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/commission"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/metrics"
	"github.com/warp/earnings-engine/rewards"
)

// Awarder is the slice of the points engine the ledger uses.
type Awarder interface {
	Award(ctx context.Context, in rewards.AwardInput) (rewards.AwardResult, error)
}

// Ledger records order earnings and answers the earnings queries.
type Ledger struct {
	Store    Store
	Resolver *commission.Resolver
	Points   Awarder
	Now      generic.Clock
}

func NewLedger(store Store, resolver *commission.Resolver, points Awarder) *Ledger {
	return &Ledger{Store: store, Resolver: resolver, Points: points, Now: generic.SystemClock}
}

// RecordResult is returned by RecordOrderEarnings.
type RecordResult struct {
	Record Record
	// Created is false when the order had already been recorded.
	Created bool
	// Points lists the awards made (or found already made) for the order.
	Points []rewards.AwardResult
}

// =============================================================================
// RECORD
// =============================================================================

// RecordOrderEarnings creates the earning record of a paid order and awards
// its points. Calling it again for the same order returns the existing
// record; point awards are keyed per order so a retry only completes awards
// a previous attempt failed to make.
func (l *Ledger) RecordOrderEarnings(ctx context.Context, o Order) (RecordResult, error) {
	if err := o.Validate(); err != nil {
		return RecordResult{}, err
	}
	log := zerolog.Ctx(ctx).With().Str("order_id", o.ID).Str("trainer_id", o.TrainerID).Logger()

	existing, err := l.Store.GetEarning(ctx, o.ID)
	if err != nil {
		return RecordResult{}, generic.Unavailable("load earning", err)
	}
	if existing != nil {
		return l.duplicate(ctx, *existing)
	}

	rec, err := l.price(ctx, o)
	if err != nil {
		return RecordResult{}, err
	}

	if err := l.Store.InsertEarning(ctx, rec); err != nil {
		if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
			// lost a race with a concurrent delivery of the same event
			existing, gerr := l.Store.GetEarning(ctx, o.ID)
			if gerr != nil {
				return RecordResult{}, generic.Unavailable("load earning", gerr)
			}
			if existing != nil {
				return l.duplicate(ctx, *existing)
			}
		}
		return RecordResult{}, generic.Unavailable("insert earning", err)
	}

	metrics.EarningsRecorded.WithLabelValues("created").Inc()
	metrics.EarningsAmount.WithLabelValues("product_commission").Add(rec.ProductCommission.InexactFloat64())
	metrics.EarningsAmount.WithLabelValues("service_revenue").Add(rec.ServiceRevenue.InexactFloat64())
	log.Info().
		Str("total_earnings", rec.TotalEarnings.StringFixed(generic.MoneyPlaces)).
		Str("order_total", rec.OrderTotal.StringFixed(generic.MoneyPlaces)).
		Msg("order earnings recorded")

	awards, err := l.awardPoints(ctx, rec)
	return RecordResult{Record: rec, Created: true, Points: awards}, err
}

func (l *Ledger) duplicate(ctx context.Context, rec Record) (RecordResult, error) {
	metrics.EarningsRecorded.WithLabelValues("duplicate").Inc()
	zerolog.Ctx(ctx).Debug().Str("order_id", rec.OrderID).Msg("order earnings already recorded")
	awards, err := l.awardPoints(ctx, rec)
	return RecordResult{Record: rec, Created: false, Points: awards}, err
}

// price resolves every line of o into an unsaved record.
func (l *Ledger) price(ctx context.Context, o Order) (Record, error) {
	now := generic.NowOr(l.Now)
	asOf := o.PaidAt
	if asOf.IsZero() {
		asOf = now
	}

	rec := Record{
		OrderID:           o.ID,
		TrainerID:         o.TrainerID,
		BundleID:          o.BundleID,
		BundleTitle:       o.BundleTitle,
		ClientID:          o.ClientID,
		ClientName:        o.ClientName,
		ProductCommission: decimal.Zero,
		ServiceRevenue:    decimal.Zero,
		OrderTotal:        generic.RoundMoney(o.Total),
		Status:            StatusPending,
		CreatedAt:         now,
	}

	for i, li := range o.LineItems {
		itemID := li.ID
		if itemID == "" {
			itemID = fmt.Sprintf("%s-%d", o.ID, i+1)
		}
		qty := li.Quantity
		if qty < 1 {
			qty = 1
		}
		amount := commission.LineTotal(li.UnitPrice, qty)
		line := Line{
			ItemID:    itemID,
			Type:      li.Type,
			ProductID: li.ProductID,
			Name:      li.Name,
			Quantity:  qty,
			UnitPrice: li.UnitPrice,
			Amount:    amount,
		}

		switch li.Type {
		case LineProduct:
			res, err := l.Resolver.Resolve(ctx, li.ProductID, amount, asOf)
			if err != nil {
				return Record{}, err
			}
			line.Rate = res.TotalRate
			line.Earnings = res.EffectiveCommission
			line.PromotionID = res.PromotionID
			rec.ProductCommission = rec.ProductCommission.Add(line.Earnings)
		case LineService:
			line.Rate = decimal.NewFromInt(1)
			line.Earnings = generic.RoundMoney(amount)
			rec.ServiceRevenue = rec.ServiceRevenue.Add(line.Earnings)
		}
		rec.Lines = append(rec.Lines, line)
	}

	rec.TotalEarnings = rec.ProductCommission.Add(rec.ServiceRevenue)
	return rec, nil
}

// awardPoints grants the order's bundle_sale points, then the new-client or
// retention bonus. The client's prior orders are the records stored before
// this one, so the current order never counts itself.
func (l *Ledger) awardPoints(ctx context.Context, rec Record) ([]rewards.AwardResult, error) {
	if l.Points == nil {
		return nil, nil
	}
	var out []rewards.AwardResult

	if pts := generic.FloorPoints(rec.OrderTotal); pts > 0 {
		res, err := l.Points.Award(ctx, rewards.AwardInput{
			TrainerID:      rec.TrainerID,
			Points:         pts,
			Type:           rewards.TxBundleSale,
			ReferenceType:  "order",
			ReferenceID:    rec.OrderID,
			Description:    describeOrder(rec),
			IdempotencyKey: "order:" + rec.OrderID + ":bundle_sale",
			Revenue:        rec.OrderTotal,
		})
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}

	if rec.ClientID == "" {
		return out, nil
	}
	prior, err := l.Store.CountPriorClientOrders(ctx, rec.TrainerID, rec.ClientID, rec.OrderID)
	if err != nil {
		return out, generic.Unavailable("count client orders", err)
	}

	in := rewards.AwardInput{
		TrainerID:      rec.TrainerID,
		ReferenceType:  "order",
		ReferenceID:    rec.OrderID,
		IdempotencyKey: "order:" + rec.OrderID + ":client_bonus",
	}
	if prior == 0 {
		in.Type, in.Points = rewards.TxNewClientBonus, rewards.NewClientBonusPoints
		in.Description = "New client: " + clientLabel(rec)
	} else {
		in.Type, in.Points = rewards.TxClientRetention, rewards.RetentionBonusPoints
		in.Description = "Returning client: " + clientLabel(rec)
	}
	res, err := l.Points.Award(ctx, in)
	if err != nil {
		return out, err
	}
	return append(out, res), nil
}

func describeOrder(rec Record) string {
	if rec.BundleTitle != "" {
		return "Bundle sale: " + rec.BundleTitle
	}
	return "Order " + rec.OrderID
}

func clientLabel(rec Record) string {
	if rec.ClientName != "" {
		return rec.ClientName
	}
	return rec.ClientID
}

// =============================================================================
// LOOKUPS AND STATUS
// =============================================================================

// Get returns the record of an order, or nil when there is none.
func (l *Ledger) Get(ctx context.Context, orderID string) (*Record, error) {
	rec, err := l.Store.GetEarning(ctx, orderID)
	if err != nil {
		return nil, generic.Unavailable("load earning", err)
	}
	return rec, nil
}

// AdvanceStatus moves a record one step along pending -> confirmed -> paid.
// Asking for any other step, or losing a race, reports Applied=false.
func (l *Ledger) AdvanceStatus(ctx context.Context, orderID string, to Status) (generic.Result[Status], error) {
	if !to.Valid() {
		return generic.Result[Status]{}, generic.Invalid("status", "unknown status "+string(to))
	}
	rec, err := l.Get(ctx, orderID)
	if err != nil || rec == nil {
		return generic.Result[Status]{}, err
	}
	if next, ok := rec.Status.Next(); !ok || next != to {
		return generic.Result[Status]{Applied: false, Current: rec.Status}, nil
	}

	applied, err := l.Store.UpdateEarningStatus(ctx, orderID, rec.Status, to)
	if err != nil {
		return generic.Result[Status]{}, generic.Unavailable("update earning status", err)
	}
	if applied {
		return generic.Result[Status]{Applied: true, Current: to}, nil
	}
	if rec, err = l.Get(ctx, orderID); err != nil || rec == nil {
		return generic.Result[Status]{}, err
	}
	return generic.Result[Status]{Applied: false, Current: rec.Status}, nil
}
