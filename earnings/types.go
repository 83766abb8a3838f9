/*
Package earnings is the trainer earnings ledger.

PURPOSE:
  Turns a paid order into one immutable earning record: commission on the
  product lines (base rate plus any running promotion) and 100% of the
  service lines. The record drives the loyalty points for the order and
  feeds every earnings summary, breakdown and history query.

KEY INVARIANTS:
  1. One record per order: orderID is the idempotency key
  2. totalEarnings == productCommission + serviceRevenue, to the penny
  3. Amounts never change after creation; only status advances
     pending -> confirmed -> paid
  4. Each product line keeps its own commission, so per-product
     breakdowns are exact

POINTS PER ORDER (in this order, each chained on the previous balance):
  bundle_sale        floor(orderTotal)
  new_client_bonus   100 if the client never ordered from this trainer before
  client_retention   50 otherwise

SEE ALSO:
  - ledger.go: RecordOrderEarnings
  - summary.go: Summary, Breakdown, History
  - commission/resolver.go: rate resolution
*/
package earnings

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/generic"
)

// =============================================================================
// ORDERS (external collaborator input)
// =============================================================================

type LineType string

const (
	LineProduct LineType = "product"
	LineService LineType = "service"
)

func (t LineType) Valid() bool {
	switch t {
	case LineProduct, LineService:
		return true
	}
	return false
}

// LineItem is one line of a paid order.
type LineItem struct {
	ID        string
	Type      LineType
	ProductID string // product lines only
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Order is a paid order as supplied by the commerce platform.
type Order struct {
	ID          string
	TrainerID   string
	ClientID    string
	ClientName  string
	BundleID    string
	BundleTitle string
	LineItems   []LineItem
	Total       decimal.Decimal
	PaidAt      time.Time
}

// Validate checks the fields the ledger depends on.
func (o Order) Validate() error {
	if o.ID == "" {
		return generic.Invalid("order_id", "required")
	}
	if o.TrainerID == "" {
		return generic.Invalid("trainer_id", "required")
	}
	if o.Total.IsNegative() {
		return generic.Invalid("total", "must not be negative")
	}
	for _, li := range o.LineItems {
		if !li.Type.Valid() {
			return generic.Invalid("line_items.type", "must be product or service")
		}
		if li.Type == LineProduct && li.ProductID == "" {
			return generic.Invalid("line_items.product_id", "required for product lines")
		}
		if li.UnitPrice.IsNegative() {
			return generic.Invalid("line_items.unit_price", "must not be negative")
		}
	}
	return nil
}

// =============================================================================
// RECORDS
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPaid      Status = "paid"
)

// Next returns the only status reachable from s.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusPending:
		return StatusConfirmed, true
	case StatusConfirmed:
		return StatusPaid, true
	case StatusPaid:
		return "", false
	}
	return "", false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPaid:
		return true
	}
	return false
}

// Line is the persisted earning of one order line.
type Line struct {
	ItemID      string
	Type        LineType
	ProductID   string
	Name        string
	Quantity    int
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal // unit price x quantity
	Rate        decimal.Decimal // 1 for services
	Earnings    decimal.Decimal
	PromotionID string
}

// Record is the immutable earning of one order.
type Record struct {
	OrderID           string
	TrainerID         string
	BundleID          string
	BundleTitle       string
	ClientID          string
	ClientName        string
	ProductCommission decimal.Decimal
	ServiceRevenue    decimal.Decimal
	TotalEarnings     decimal.Decimal
	OrderTotal        decimal.Decimal
	Status            Status
	CreatedAt         time.Time
	Lines             []Line
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// InsertEarning persists rec with its lines atomically. It returns
	// ErrDuplicateIdempotencyKey when a record for rec.OrderID exists.
	InsertEarning(ctx context.Context, rec Record) error

	// GetEarning returns nil, nil when the order has no record.
	GetEarning(ctx context.Context, orderID string) (*Record, error)

	// CountPriorClientOrders counts the trainer's records for clientID that
	// precede orderID's own record. Records created at the same instant are
	// ordered by insertion.
	CountPriorClientOrders(ctx context.Context, trainerID, clientID, orderID string) (int, error)

	// ListEarnings returns the trainer's records (with lines) created in [from, to).
	ListEarnings(ctx context.Context, trainerID string, from, to time.Time) ([]Record, error)

	// PageEarnings returns a newest-first page (without lines) and the total count.
	PageEarnings(ctx context.Context, trainerID string, limit, offset int) ([]Record, int, error)

	// UpdateEarningStatus is a conditional update from -> to.
	UpdateEarningStatus(ctx context.Context, orderID string, from, to Status) (bool, error)
}
