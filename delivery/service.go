package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/metrics"
)

// Directory resolves actors for privilege checks.
type Directory interface {
	GetUser(ctx context.Context, id string) (*generic.User, error)
}

// Catalog tells which products need a trainer handoff.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*generic.Product, error)
}

type Service struct {
	Store   Store
	Users   Directory
	Catalog Catalog
	Now     generic.Clock
}

func NewService(store Store, users Directory, catalog Catalog) *Service {
	return &Service{Store: store, Users: users, Catalog: catalog, Now: generic.SystemClock}
}

// =============================================================================
// CREATION
// =============================================================================

// CreateForOrder creates one pending delivery per product line of a paid
// order whose product needs a trainer handoff. Lines of products missing
// from the catalog are treated as needing one. Calling it again for the
// same order creates nothing new.
func (s *Service) CreateForOrder(ctx context.Context, o earnings.Order) ([]Delivery, error) {
	if o.ID == "" || o.TrainerID == "" {
		return nil, generic.Invalid("order", "order id and trainer id are required")
	}
	now := generic.NowOr(s.Now)

	var ds []Delivery
	for i, li := range o.LineItems {
		if li.Type != earnings.LineProduct {
			continue
		}
		name := li.Name
		if s.Catalog != nil {
			p, err := s.Catalog.GetProduct(ctx, li.ProductID)
			if err != nil {
				return nil, generic.Unavailable("load product", err)
			}
			if p != nil && !p.RequiresTrainerDelivery {
				continue
			}
			if p != nil && name == "" {
				name = p.Name
			}
		}
		itemID := li.ID
		if itemID == "" {
			itemID = fmt.Sprintf("%s-%d", o.ID, i+1)
		}
		qty := li.Quantity
		if qty < 1 {
			qty = 1
		}
		ds = append(ds, Delivery{
			ID:               generic.NewID("dlv"),
			OrderID:          o.ID,
			OrderItemID:      itemID,
			TrainerID:        o.TrainerID,
			ClientID:         o.ClientID,
			ProductID:        li.ProductID,
			ProductName:      name,
			Quantity:         qty,
			Status:           StatusPending,
			RescheduleStatus: RescheduleNone,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	if len(ds) == 0 {
		return nil, nil
	}

	created, err := s.Store.InsertDeliveries(ctx, ds)
	if err != nil {
		return nil, generic.Unavailable("insert deliveries", err)
	}
	zerolog.Ctx(ctx).Info().Str("order_id", o.ID).Int("created", created).Msg("deliveries created for order")

	out, err := s.Store.ListDeliveries(ctx, Filter{OrderID: o.ID})
	if err != nil {
		return nil, generic.Unavailable("list deliveries", err)
	}
	return out, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// transition runs one guarded update and reports the status afterwards.
func (s *Service) transition(ctx context.Context, op, id string, g Guard, c Change) (generic.Result[Status], error) {
	c.UpdatedAt = generic.NowOr(s.Now)
	applied, err := s.Store.UpdateDelivery(ctx, id, g, c)
	if err != nil {
		return generic.Result[Status]{}, generic.Unavailable(op, err)
	}

	d, err := s.Store.GetDelivery(ctx, id)
	if err != nil {
		return generic.Result[Status]{}, generic.Unavailable("load delivery", err)
	}
	res := generic.Result[Status]{Applied: applied}
	if d != nil {
		res.Current = d.Status
	}

	outcome := "applied"
	if !applied {
		outcome = "rejected"
	}
	metrics.DeliveryTransitions.WithLabelValues(op, outcome).Inc()
	zerolog.Ctx(ctx).Debug().
		Str("delivery_id", id).
		Str("operation", op).
		Bool("applied", applied).
		Str("status", string(res.Current)).
		Msg("delivery transition")
	return res, nil
}

// requireActor rejects an empty actor id. The guard only matches an owner
// it is given.
func requireActor(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return generic.Invalid(field, "required")
	}
	return nil
}

// MarkReady moves pending -> ready for the owning trainer.
func (s *Service) MarkReady(ctx context.Context, id, trainerID string) (generic.Result[Status], error) {
	if err := requireActor("trainer_id", trainerID); err != nil {
		return generic.Result[Status]{}, err
	}
	to := StatusReady
	return s.transition(ctx, "mark_ready", id,
		Guard{From: []Status{StatusPending}, TrainerID: trainerID},
		Change{Status: &to})
}

// DeliveredDetails are optional facts recorded with a handoff.
type DeliveredDetails struct {
	Notes          string
	Method         string
	TrackingNumber string
}

// MarkDelivered moves pending or ready -> delivered for the owning trainer.
func (s *Service) MarkDelivered(ctx context.Context, id, trainerID string, d DeliveredDetails) (generic.Result[Status], error) {
	if err := requireActor("trainer_id", trainerID); err != nil {
		return generic.Result[Status]{}, err
	}
	to := StatusDelivered
	now := generic.NowOr(s.Now)
	c := Change{Status: &to, DeliveredAt: &now}
	if d.Notes != "" {
		c.DeliveryNotes = &d.Notes
	}
	if d.Method != "" {
		c.DeliveryMethod = &d.Method
	}
	if d.TrackingNumber != "" {
		c.TrackingNumber = &d.TrackingNumber
	}
	return s.transition(ctx, "mark_delivered", id,
		Guard{From: []Status{StatusPending, StatusReady}, TrainerID: trainerID}, c)
}

// ConfirmReceipt moves delivered -> confirmed for the owning client.
func (s *Service) ConfirmReceipt(ctx context.Context, id, clientID, notes string) (generic.Result[Status], error) {
	if err := requireActor("client_id", clientID); err != nil {
		return generic.Result[Status]{}, err
	}
	to := StatusConfirmed
	now := generic.NowOr(s.Now)
	c := Change{Status: &to, ConfirmedAt: &now}
	if notes != "" {
		c.ClientNotes = &notes
	}
	return s.transition(ctx, "confirm_receipt", id,
		Guard{From: []Status{StatusDelivered}, ClientID: clientID}, c)
}

// IssueContext is what callers need to notify the trainer and managers.
type IssueContext struct {
	DeliveryID  string
	OrderID     string
	ProductName string
	TrainerID   string
	ClientID    string
	Notes       string
}

// ReportIssue moves delivered -> disputed for the owning client. The
// returned context is nil unless the transition applied.
func (s *Service) ReportIssue(ctx context.Context, id, clientID, notes string) (generic.Result[Status], *IssueContext, error) {
	if err := requireActor("client_id", clientID); err != nil {
		return generic.Result[Status]{}, nil, err
	}
	notes = strings.TrimSpace(notes)
	to := StatusDisputed
	now := generic.NowOr(s.Now)
	res, err := s.transition(ctx, "report_issue", id,
		Guard{From: []Status{StatusDelivered}, ClientID: clientID},
		Change{Status: &to, DisputedAt: &now, IssueNotes: &notes})
	if err != nil || !res.Applied {
		return res, nil, err
	}

	d, err := s.Store.GetDelivery(ctx, id)
	if err != nil || d == nil {
		// the transition stands; the caller just has less to say
		zerolog.Ctx(ctx).Warn().Err(err).Str("delivery_id", id).Msg("issue context unavailable")
		return res, nil, nil
	}
	return res, &IssueContext{
		DeliveryID:  d.ID,
		OrderID:     d.OrderID,
		ProductName: d.ProductName,
		TrainerID:   d.TrainerID,
		ClientID:    d.ClientID,
		Notes:       notes,
	}, nil
}

// ResolveDispute closes a disputed delivery. Only managers, coordinators and
// admins may call it. Every resolution except redeliver ends in confirmed.
func (s *Service) ResolveDispute(ctx context.Context, id, managerID string, resolution ResolutionType, notes string) (generic.Result[Status], error) {
	if !resolution.Valid() {
		return generic.Result[Status]{}, generic.Invalid("resolution_type", "unknown resolution "+string(resolution))
	}
	if err := s.requireManager(ctx, managerID); err != nil {
		return generic.Result[Status]{}, err
	}

	to := resolution.Target()
	now := generic.NowOr(s.Now)
	c := Change{
		Status:         &to,
		ResolvedAt:     &now,
		ResolvedBy:     &managerID,
		ResolutionType: &resolution,
	}
	if notes != "" {
		c.ResolutionNotes = &notes
	}
	if to == StatusConfirmed {
		c.ConfirmedAt = &now
	}
	return s.transition(ctx, "resolve_dispute", id, Guard{From: []Status{StatusDisputed}}, c)
}

func (s *Service) requireManager(ctx context.Context, userID string) error {
	if userID == "" {
		return generic.Invalid("manager_id", "required")
	}
	if s.Users == nil {
		return nil
	}
	u, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return generic.Unavailable("load user", err)
	}
	if u == nil || !u.Role.CanResolveDisputes() {
		return fmt.Errorf("%w: %s may not resolve disputes", generic.ErrForbidden, userID)
	}
	return nil
}

// =============================================================================
// RESCHEDULE
// =============================================================================

// rescheduleTransition is transition for the reschedule sub-protocol; it
// reports the reschedule status instead of the main one.
func (s *Service) rescheduleTransition(ctx context.Context, op, id string, g Guard, c Change) (generic.Result[RescheduleStatus], error) {
	c.UpdatedAt = generic.NowOr(s.Now)
	applied, err := s.Store.UpdateDelivery(ctx, id, g, c)
	if err != nil {
		return generic.Result[RescheduleStatus]{}, generic.Unavailable(op, err)
	}
	d, err := s.Store.GetDelivery(ctx, id)
	if err != nil {
		return generic.Result[RescheduleStatus]{}, generic.Unavailable("load delivery", err)
	}
	res := generic.Result[RescheduleStatus]{Applied: applied}
	if d != nil {
		res.Current = d.RescheduleStatus
	}
	outcome := "applied"
	if !applied {
		outcome = "rejected"
	}
	metrics.DeliveryTransitions.WithLabelValues(op, outcome).Inc()
	return res, nil
}

// RequestReschedule opens a reschedule request for the owning client. It
// applies only while the delivery is pending or ready and no other request
// is outstanding.
func (s *Service) RequestReschedule(ctx context.Context, id, clientID string, proposed time.Time, reason string) (generic.Result[RescheduleStatus], error) {
	if err := requireActor("client_id", clientID); err != nil {
		return generic.Result[RescheduleStatus]{}, err
	}
	reason = strings.TrimSpace(reason)
	if proposed.IsZero() {
		return generic.Result[RescheduleStatus]{}, generic.Invalid("proposed_date", "required")
	}
	if reason == "" {
		return generic.Result[RescheduleStatus]{}, generic.Invalid("reason", "required")
	}
	now := generic.NowOr(s.Now)
	if proposed.Before(generic.StartOfDay(now)) {
		return generic.Result[RescheduleStatus]{}, generic.Invalid("proposed_date", "must not be in the past")
	}

	pending := ReschedulePending
	empty := ""
	return s.rescheduleTransition(ctx, "request_reschedule", id,
		Guard{
			From:       []Status{StatusPending, StatusReady},
			ClientID:   clientID,
			Reschedule: []RescheduleStatus{RescheduleNone, RescheduleRejected},
		},
		Change{
			RescheduleStatus:      &pending,
			ProposedDate:          &proposed,
			RescheduleReason:      &reason,
			RescheduleResponse:    &empty,
			RescheduleRequestedAt: &now,
		})
}

// ApproveReschedule accepts the outstanding request of the owning trainer's
// delivery while it is still pending or ready; the proposed date becomes the
// scheduled date.
func (s *Service) ApproveReschedule(ctx context.Context, id, trainerID string) (generic.Result[RescheduleStatus], error) {
	if err := requireActor("trainer_id", trainerID); err != nil {
		return generic.Result[RescheduleStatus]{}, err
	}
	approved := RescheduleApproved
	return s.rescheduleTransition(ctx, "approve_reschedule", id,
		Guard{
			From:       []Status{StatusPending, StatusReady},
			TrainerID:  trainerID,
			Reschedule: []RescheduleStatus{ReschedulePending},
		},
		Change{RescheduleStatus: &approved, ScheduleFromProposal: true})
}

// RejectReschedule declines the outstanding request with an optional note.
func (s *Service) RejectReschedule(ctx context.Context, id, trainerID, note string) (generic.Result[RescheduleStatus], error) {
	if err := requireActor("trainer_id", trainerID); err != nil {
		return generic.Result[RescheduleStatus]{}, err
	}
	rejected := RescheduleRejected
	c := Change{RescheduleStatus: &rejected}
	if note != "" {
		c.RescheduleResponse = &note
	}
	return s.rescheduleTransition(ctx, "reject_reschedule", id,
		Guard{TrainerID: trainerID, Reschedule: []RescheduleStatus{ReschedulePending}}, c)
}

// =============================================================================
// QUERIES - read failures degrade to empty results
// =============================================================================

// Get returns nil when id is unknown.
func (s *Service) Get(ctx context.Context, id string) (*Delivery, error) {
	d, err := s.Store.GetDelivery(ctx, id)
	if err != nil {
		return nil, generic.Unavailable("load delivery", err)
	}
	return d, nil
}

func (s *Service) list(ctx context.Context, f Filter) []Delivery {
	ds, err := s.Store.ListDeliveries(ctx, f)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("delivery list degraded to empty result")
		return []Delivery{}
	}
	return ds
}

func (s *Service) ListForTrainer(ctx context.Context, trainerID string, statuses ...Status) []Delivery {
	return s.list(ctx, Filter{TrainerID: trainerID, Statuses: statuses})
}

func (s *Service) ListForClient(ctx context.Context, clientID string, statuses ...Status) []Delivery {
	return s.list(ctx, Filter{ClientID: clientID, Statuses: statuses})
}

// ListDisputed is the manager queue.
func (s *Service) ListDisputed(ctx context.Context) []Delivery {
	return s.list(ctx, Filter{Statuses: []Status{StatusDisputed}})
}

// ListPendingReschedules is the trainer's queue of requests to answer.
func (s *Service) ListPendingReschedules(ctx context.Context, trainerID string) []Delivery {
	return s.list(ctx, Filter{TrainerID: trainerID, Reschedule: ReschedulePending})
}

type Stats struct {
	Total              int
	ByStatus           map[Status]int
	PendingReschedules int
	// CompletionRate is the confirmed share of all deliveries, in percent.
	CompletionRate decimal.Decimal
}

func (s *Service) Stats(ctx context.Context, trainerID string) Stats {
	st := Stats{ByStatus: make(map[Status]int, len(Statuses))}
	for _, status := range Statuses {
		st.ByStatus[status] = 0
	}
	for _, d := range s.ListForTrainer(ctx, trainerID) {
		st.Total++
		st.ByStatus[d.Status]++
		if d.RescheduleStatus == ReschedulePending {
			st.PendingReschedules++
		}
	}
	st.CompletionRate = generic.PercentOf(
		decimal.NewFromInt(int64(st.ByStatus[StatusConfirmed])),
		decimal.NewFromInt(int64(st.Total)),
	)
	return st
}
