/*
Package notify delivers workflow notifications to trainers, clients and
managers.

DELIVERY GUARANTEE:
  None. The Dispatcher sends in the background after the state change it
  accompanies has been committed. A failed send is logged and counted,
  never returned: no transition is rolled back or failed because a
  message did not go out.

CHANNELS:
  KafkaPublisher  JSON event per notification, keyed by recipient
  SMSSender       HTTP SMS gateway, for recipients with a phone number
*/
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/metrics"
)

// Template names.
const (
	TemplateDeliveryReady       = "delivery_ready"
	TemplateDeliveryDelivered   = "delivery_delivered"
	TemplateDeliveryConfirmed   = "delivery_confirmed"
	TemplateDeliveryDisputed    = "delivery_disputed"
	TemplateDisputeResolved     = "dispute_resolved"
	TemplateRescheduleRequested = "reschedule_requested"
	TemplateRescheduleAnswered  = "reschedule_answered"
	TemplatePartnershipApproved = "partnership_approved"
	TemplateAwardGranted        = "award_granted"
)

// Message is one notification to one recipient.
type Message struct {
	Template    string            `json:"template"`
	RecipientID string            `json:"recipient_id"`
	Phone       string            `json:"phone,omitempty"`
	Data        map[string]string `json:"data"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Sender is one delivery channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, m Message) error
}

// Directory resolves recipients.
type Directory interface {
	GetUser(ctx context.Context, id string) (*generic.User, error)
	ListUsersByRole(ctx context.Context, roles ...generic.Role) ([]generic.User, error)
}

// =============================================================================
// DISPATCHER
// =============================================================================

type Dispatcher struct {
	Senders []Sender
	Users   Directory
	Timeout time.Duration
	Now     generic.Clock
	Logger  zerolog.Logger

	wg sync.WaitGroup
}

func NewDispatcher(users Directory, logger zerolog.Logger, senders ...Sender) *Dispatcher {
	return &Dispatcher{
		Senders: senders,
		Users:   users,
		Timeout: 10 * time.Second,
		Now:     generic.SystemClock,
		Logger:  logger,
	}
}

// Notify sends template to each recipient id in the background.
func (d *Dispatcher) Notify(ctx context.Context, template string, data map[string]string, recipientIDs ...string) {
	if d == nil {
		return
	}
	for _, id := range recipientIDs {
		if id == "" {
			continue
		}
		d.dispatch(ctx, Message{Template: template, RecipientID: id, Data: data})
	}
}

// NotifyManagers sends template to every manager, coordinator and admin.
func (d *Dispatcher) NotifyManagers(ctx context.Context, template string, data map[string]string) {
	if d == nil || d.Users == nil {
		return
	}
	managers, err := d.Users.ListUsersByRole(ctx, generic.RoleManager, generic.RoleCoordinator, generic.RoleAdmin)
	if err != nil {
		d.Logger.Warn().Err(err).Str("template", template).Msg("manager lookup failed, notification dropped")
		return
	}
	for _, m := range managers {
		d.dispatch(ctx, Message{Template: template, RecipientID: m.ID, Phone: m.Phone, Data: data})
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, m Message) {
	m.OccurredAt = generic.NowOr(d.Now)
	log := d.Logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		log = *l
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// detached from the request: the response may already be written
		sendCtx, cancel := context.WithTimeout(context.Background(), d.Timeout)
		defer cancel()

		if m.Phone == "" && d.Users != nil {
			if u, err := d.Users.GetUser(sendCtx, m.RecipientID); err == nil && u != nil {
				m.Phone = u.Phone
			}
		}
		for _, s := range d.Senders {
			if err := s.Send(sendCtx, m); err != nil {
				metrics.NotificationsSent.WithLabelValues(s.Name(), "failed").Inc()
				log.Warn().Err(err).
					Str("channel", s.Name()).
					Str("template", m.Template).
					Str("recipient_id", m.RecipientID).
					Msg("notification failed")
				continue
			}
			metrics.NotificationsSent.WithLabelValues(s.Name(), "ok").Inc()
		}
	}()
}

// Wait blocks until every in-flight send has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }
