/*
Package delivery tracks the physical handoff of bundle products from
trainer to client.

STATE MACHINE:

	pending ──► ready ──► delivered ──► confirmed (terminal)
	   │                   ▲   │            ▲
	   └───────────────────┘   ▼            │
	                        disputed ───────┘  (manager resolution)
	                           │
	                           └──► delivered  (resolution "redeliver")

	pending   -> ready, delivered      trainer
	ready     -> delivered             trainer
	delivered -> confirmed, disputed   client
	disputed  -> confirmed, delivered  manager, coordinator or admin

RESOLUTION:
  A resolved dispute is stored as confirmed with resolvedAt, resolvedBy,
  resolutionType and resolutionNotes populated. The redeliver resolution
  instead sends the item back to delivered so the client confirms again.

RESCHEDULE:
  Independent of the main status. A client may have one outstanding
  request (rescheduleStatus none|rejected -> pending) while the delivery is
  pending or ready. The trainer approves (proposed date becomes the
  scheduled date) or rejects it.

CONCURRENCY:
  Every transition is one conditional update guarded by the expected
  status, the acting owner and, for reschedules, the reschedule status.
  Of two racing actors exactly one applies; the other gets
  Result{Applied: false} with the status it lost to.

SEE ALSO:
  - service.go: transitions
  - store/sqlite/deliveries.go: the conditional UPDATE
*/
package delivery

import (
	"context"
	"time"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusConfirmed Status = "confirmed"
	StatusDisputed  Status = "disputed"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusPending, StatusReady, StatusDelivered, StatusConfirmed, StatusDisputed}

// Successors returns the statuses reachable from s in one transition.
func (s Status) Successors() []Status {
	switch s {
	case StatusPending:
		return []Status{StatusReady, StatusDelivered}
	case StatusReady:
		return []Status{StatusDelivered}
	case StatusDelivered:
		return []Status{StatusConfirmed, StatusDisputed}
	case StatusDisputed:
		return []Status{StatusDelivered, StatusConfirmed}
	case StatusConfirmed:
		return nil
	}
	return nil
}

// CanTransitionTo reports whether to is a successor of s.
func (s Status) CanTransitionTo(to Status) bool {
	for _, n := range s.Successors() {
		if n == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool { return len(s.Successors()) == 0 && s.Valid() }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusDelivered, StatusConfirmed, StatusDisputed:
		return true
	}
	return false
}

type RescheduleStatus string

const (
	RescheduleNone     RescheduleStatus = "none"
	ReschedulePending  RescheduleStatus = "pending"
	RescheduleApproved RescheduleStatus = "approved"
	RescheduleRejected RescheduleStatus = "rejected"
)

type ResolutionType string

const (
	ResolutionRefund      ResolutionType = "refund"
	ResolutionReplacement ResolutionType = "replacement"
	ResolutionRedeliver   ResolutionType = "redeliver"
	ResolutionNoAction    ResolutionType = "no_action"
)

func (r ResolutionType) Valid() bool {
	switch r {
	case ResolutionRefund, ResolutionReplacement, ResolutionRedeliver, ResolutionNoAction:
		return true
	}
	return false
}

// Target is the status a dispute resolves to.
func (r ResolutionType) Target() Status {
	switch r {
	case ResolutionRedeliver:
		return StatusDelivered
	case ResolutionRefund, ResolutionReplacement, ResolutionNoAction:
		return StatusConfirmed
	}
	return StatusConfirmed
}

// MinIssueNotesLength is the minimum description a client must give when
// reporting an issue. The api layer enforces it.
const MinIssueNotesLength = 10

// =============================================================================
// DELIVERY
// =============================================================================

type Delivery struct {
	ID          string
	OrderID     string
	OrderItemID string
	TrainerID   string
	ClientID    string
	ProductID   string
	ProductName string
	Quantity    int
	Status      Status

	ScheduledDate  *time.Time
	DeliveredAt    *time.Time
	ConfirmedAt    *time.Time
	DisputedAt     *time.Time
	DeliveryMethod string
	TrackingNumber string
	DeliveryNotes  string
	ClientNotes    string
	IssueNotes     string

	ResolvedAt      *time.Time
	ResolvedBy      string
	ResolutionType  ResolutionType
	ResolutionNotes string

	RescheduleStatus      RescheduleStatus
	ProposedDate          *time.Time
	RescheduleReason      string
	RescheduleResponse    string
	RescheduleRequestedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Guard is the predicate of a conditional update. Empty fields are not
// checked, so the Service refuses actor transitions without an owner id.
type Guard struct {
	From       []Status
	TrainerID  string
	ClientID   string
	Reschedule []RescheduleStatus
}

// Change lists the columns a transition writes. Nil fields are left alone.
type Change struct {
	Status          *Status
	DeliveredAt     *time.Time
	ConfirmedAt     *time.Time
	DisputedAt      *time.Time
	DeliveryMethod  *string
	TrackingNumber  *string
	DeliveryNotes   *string
	ClientNotes     *string
	IssueNotes      *string
	ResolvedAt      *time.Time
	ResolvedBy      *string
	ResolutionType  *ResolutionType
	ResolutionNotes *string

	RescheduleStatus      *RescheduleStatus
	ProposedDate          *time.Time
	RescheduleReason      *string
	RescheduleResponse    *string
	RescheduleRequestedAt *time.Time
	// ScheduleFromProposal copies the proposed date into the scheduled date.
	ScheduleFromProposal bool

	UpdatedAt time.Time
}

// Filter selects deliveries for list queries.
type Filter struct {
	TrainerID  string
	ClientID   string
	OrderID    string
	Statuses   []Status
	Reschedule RescheduleStatus
}

type Store interface {
	// InsertDeliveries creates the deliveries that do not exist yet for their
	// (order, order item) and returns how many were created.
	InsertDeliveries(ctx context.Context, ds []Delivery) (int, error)

	// GetDelivery returns nil, nil when id is unknown.
	GetDelivery(ctx context.Context, id string) (*Delivery, error)

	// UpdateDelivery applies c only when the row matches g; it reports
	// whether a row was changed.
	UpdateDelivery(ctx context.Context, id string, g Guard, c Change) (bool, error)

	ListDeliveries(ctx context.Context, f Filter) ([]Delivery, error)
}
