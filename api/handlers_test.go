/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Order-paid events (recording, replay, validation)
- Commission queries and promotion overlap
- Earnings status and summaries
- Points redemption
- Delivery workflow, actor checks and notifications
- Ad partnerships
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/earnings-engine/factory"
	"github.com/warp/earnings-engine/notify"
	"github.com/warp/earnings-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// recordingSender keeps every message it is asked to send.
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (s *recordingSender) Name() string { return "test" }

func (s *recordingSender) Send(_ context.Context, m notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return nil
}

// to returns the templates sent to recipientID.
func (s *recordingSender) to(recipientID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.sent {
		if m.RecipientID == recipientID {
			out = append(out, m.Template)
		}
	}
	return out
}

// failingSender refuses every message and counts the attempts.
type failingSender struct {
	mu       sync.Mutex
	attempts int
}

func (s *failingSender) Name() string { return "broken" }

func (s *failingSender) Send(context.Context, notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return errors.New("gateway down")
}

type testServer struct {
	h      *Handler
	router http.Handler
	sender *recordingSender
	now    time.Time
}

func newTestServer(t *testing.T) *testServer {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ts := &testServer{sender: &recordingSender{}, now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	dispatcher := notify.NewDispatcher(store, zerolog.Nop(), ts.sender)
	ts.h = NewHandler(store, dispatcher)
	ts.h.SetClock(func() time.Time { return ts.now })
	ts.router = NewRouter(ts.h, zerolog.Nop(), []string{"*"})
	return ts
}

// do sends a request; body is JSON-encoded unless nil. actorID sets the
// actor header when not empty.
func (ts *testServer) do(t *testing.T, method, path string, body any, actorID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set(ActorHeader, actorID)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// rackOrder is a rack needing a handoff plus one coaching service.
func rackOrder(id, clientID string) map[string]any {
	return map[string]any{
		"order_id":     id,
		"trainer_id":   "tr-1",
		"client_id":    clientID,
		"bundle_title": "Home Gym",
		"total":        "774.95",
		"line_items": []map[string]any{
			{"id": id + "-1", "type": "product", "product_id": "prod-rack", "name": "Rack", "quantity": 1, "unit_price": "699.95"},
			{"id": id + "-2", "type": "service", "name": "Coaching", "quantity": 1, "unit_price": "75.00"},
		},
	}
}

func (ts *testServer) payRackOrder(t *testing.T, id, clientID string) OrderPaidResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/orders/paid", rackOrder(id, clientID), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[OrderPaidResponse](t, rec)
}

func (ts *testServer) saveUser(t *testing.T, id, role string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/admin/users", map[string]string{"id": id, "name": id, "role": role}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// ORDERS
// =============================================================================

func TestOrderPaid_RecordsEarningsPointsAndDeliveries(t *testing.T) {
	// GIVEN: a rack at the 10% base rate plus a 75.00 service
	ts := newTestServer(t)

	// WHEN: the order-paid event arrives
	resp := ts.payRackOrder(t, "o-1", "c-1")

	// THEN: commission, service revenue and points are recorded
	assert.True(t, resp.Created)
	assert.Equal(t, "70.00", resp.Earning.ProductCommission)
	assert.Equal(t, "75.00", resp.Earning.ServiceRevenue)
	assert.Equal(t, "145.00", resp.Earning.TotalEarnings)
	assert.Equal(t, "pending", resp.Earning.Status)
	require.Len(t, resp.Earning.Lines, 2)

	// 774 for the sale, 100 for a new client
	assert.Equal(t, int64(874), resp.PointsEarned)

	// AND: the product line needs a handoff
	require.Len(t, resp.Deliveries, 1)
	assert.Equal(t, "pending", resp.Deliveries[0].Status)
	assert.Equal(t, "o-1-1", resp.Deliveries[0].OrderItemID)
}

func TestOrderPaid_ReplayIsIdempotent(t *testing.T) {
	// GIVEN: an order already recorded
	ts := newTestServer(t)
	first := ts.payRackOrder(t, "o-1", "c-1")

	// WHEN: the platform redelivers the event
	rec := ts.do(t, http.MethodPost, "/api/orders/paid", rackOrder("o-1", "c-1"), "")

	// THEN: 200 with the original record and nothing new
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	again := decodeAs[OrderPaidResponse](t, rec)
	assert.False(t, again.Created)
	assert.Equal(t, first.Earning.TotalEarnings, again.Earning.TotalEarnings)
	assert.Equal(t, int64(0), again.PointsEarned)
	require.Len(t, again.Deliveries, 1)
	assert.Equal(t, first.Deliveries[0].ID, again.Deliveries[0].ID)

	points := decodeAs[PointsSummaryDTO](t, ts.do(t, http.MethodGet, "/api/trainers/tr-1/points", nil, ""))
	assert.Equal(t, int64(874), points.Account.TotalPoints)
}

func TestOrderPaid_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing order id", map[string]any{"trainer_id": "tr-1"}},
		{"missing trainer id", map[string]any{"order_id": "o-1"}},
		{"unknown line type", map[string]any{
			"order_id": "o-1", "trainer_id": "tr-1",
			"line_items": []map[string]any{{"type": "gift", "quantity": 1, "unit_price": "1"}},
		}},
		{"product line without product", map[string]any{
			"order_id": "o-1", "trainer_id": "tr-1",
			"line_items": []map[string]any{{"type": "product", "quantity": 1, "unit_price": "1"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/orders/paid", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	// nothing was recorded
	rec := ts.do(t, http.MethodGet, "/api/earnings/o-1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderPaid_MalformedBody(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/orders/paid", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "Invalid request body", body.Error)
}

// =============================================================================
// EARNINGS
// =============================================================================

func TestAdvanceEarningStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.payRackOrder(t, "o-1", "c-1")

	// skipping confirmed is not a step
	rec := ts.do(t, http.MethodPost, "/api/earnings/o-1/status", map[string]string{"status": "paid"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "pending", decodeAs[TransitionResponse](t, rec).CurrentStatus)

	rec = ts.do(t, http.MethodPost, "/api/earnings/o-1/status", map[string]string{"status": "confirmed"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeAs[TransitionResponse](t, rec)
	assert.True(t, resp.Applied)
	assert.Equal(t, "confirmed", resp.CurrentStatus)

	rec = ts.do(t, http.MethodPost, "/api/earnings/o-404/status", map[string]string{"status": "confirmed"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEarningsSummary(t *testing.T) {
	// GIVEN: two orders this month
	ts := newTestServer(t)
	ts.payRackOrder(t, "o-1", "c-1")
	ts.payRackOrder(t, "o-2", "c-2")

	// WHEN: the month summary is requested
	rec := ts.do(t, http.MethodGet, "/api/trainers/tr-1/earnings/summary?period=month", nil, "")

	// THEN: both orders are counted
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decodeAs[EarningsSummaryDTO](t, rec)
	assert.Equal(t, "290.00", s.Totals.TotalEarnings)
	assert.Equal(t, "140.00", s.Totals.ProductCommissions)
	assert.Equal(t, 2, s.Totals.BundlesSold)
	require.NotNil(t, s.Change)
}

func TestEarningsSummary_BadPeriod(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/trainers/tr-1/earnings/summary?period=fortnight", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/trainers/tr-1/earnings/summary?from=2025-03-10&to=2025-03-01", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEarningsHistory_Pages(t *testing.T) {
	ts := newTestServer(t)
	for _, id := range []string{"o-1", "o-2", "o-3"} {
		ts.payRackOrder(t, id, "c-"+id)
		ts.now = ts.now.Add(time.Minute)
	}

	rec := ts.do(t, http.MethodGet, "/api/trainers/tr-1/earnings/history?limit=2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeAs[PageDTO[EarningDTO]](t, rec)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	rec = ts.do(t, http.MethodGet, "/api/trainers/tr-1/earnings/history?limit=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// COMMISSION
// =============================================================================

func TestCommission_PromotionAndOverlap(t *testing.T) {
	// GIVEN: a March promotion on whey
	ts := newTestServer(t)
	promo := map[string]any{
		"id":          "promo-whey",
		"product_id":  "prod-whey",
		"bonus_rate":  "0.20",
		"valid_from":  "2025-03-01T00:00:00Z",
		"valid_until": "2025-03-31T23:59:59Z",
	}
	rec := ts.do(t, http.MethodPost, "/api/admin/commission/promotions", promo, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: whey is resolved at 24.95
	rec = ts.do(t, http.MethodGet, "/api/commission/products/prod-whey?price=24.95", nil, "")

	// THEN: base plus bonus applies
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeAs[ResolutionDTO](t, rec)
	assert.Equal(t, "7.49", res.EffectiveCommission)
	assert.Equal(t, "promo-whey", res.PromotionID)

	// AND: an overlapping promotion for the same product is refused
	overlap := map[string]any{
		"id":          "promo-whey-2",
		"product_id":  "prod-whey",
		"bonus_rate":  "0.05",
		"valid_from":  "2025-03-15T00:00:00Z",
		"valid_until": "2025-04-15T00:00:00Z",
	}
	rec = ts.do(t, http.MethodPost, "/api/admin/commission/promotions", overlap, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	// AND: after March only the base rate is left
	rec = ts.do(t, http.MethodGet, "/api/commission/products/prod-whey?price=24.95&at=2025-04-02T00:00:00Z", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeAs[ResolutionDTO](t, rec).PromotionID)
}

func TestCommission_BadPrice(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/commission/products/prod-whey?price=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetBaseRate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/admin/commission/base-rate", map[string]string{"rate": "0.12"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/commission/products/prod-rack?price=100", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12.00", decodeAs[ResolutionDTO](t, rec).EffectiveCommission)

	rec = ts.do(t, http.MethodPut, "/api/admin/commission/base-rate", map[string]string{"rate": "1.5"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// POINTS
// =============================================================================

func TestRedeemPoints(t *testing.T) {
	// GIVEN: a trainer with 874 points
	ts := newTestServer(t)
	ts.payRackOrder(t, "o-1", "c-1")

	// WHEN: more than the balance is redeemed
	rec := ts.do(t, http.MethodPost, "/api/trainers/tr-1/points/redeem", map[string]any{"points": 2000, "idempotency_key": "r-1"}, "")

	// THEN: 422 and the balance is untouched
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	// WHEN: a covered amount is redeemed twice with the same key
	body := map[string]any{"points": 500, "idempotency_key": "r-2", "description": "Gift card"}
	rec = ts.do(t, http.MethodPost, "/api/trainers/tr-1/points/redeem", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeAs[RedeemResponse](t, rec)
	rec = ts.do(t, http.MethodPost, "/api/trainers/tr-1/points/redeem", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decodeAs[RedeemResponse](t, rec)

	// THEN: it is debited once
	assert.False(t, first.Duplicate)
	assert.Equal(t, int64(374), first.Balance)
	assert.True(t, second.Duplicate)

	points := decodeAs[PointsSummaryDTO](t, ts.do(t, http.MethodGet, "/api/trainers/tr-1/points", nil, ""))
	assert.Equal(t, int64(374), points.Account.TotalPoints)
	assert.Equal(t, int64(874), points.Account.LifetimePoints)

	rec = ts.do(t, http.MethodPost, "/api/trainers/tr-1/points/redeem", map[string]any{"points": 0}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// DELIVERIES
// =============================================================================

func TestRateTables_ReflectsLoadedTables(t *testing.T) {
	// GIVEN: a custom gold package
	ts := newTestServer(t)
	tables, err := factory.ParseRateTables(`{"ad_packages": [{"tier": "gold", "monthly_fee": "549", "commission_rate": "0.22", "bonus_points": 2500}], "ad_period_days": 28}`)
	require.NoError(t, err)
	ts.h.Ads.Packages = tables.AdPackages
	ts.h.Ads.PeriodDays = tables.AdPeriodDays

	// WHEN: the tables are requested
	rec := ts.do(t, http.MethodGet, "/api/admin/rate-tables", nil, "")

	// THEN: they come back in file form
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeAs[factory.RateTablesJSON](t, rec)
	assert.Equal(t, 28, got.AdPeriodDays)
	require.Len(t, got.LoyaltyTiers, 4)
	assert.Equal(t, "bronze", got.LoyaltyTiers[0].Tier)
	require.Len(t, got.AdPackages, 4)
	assert.Equal(t, factory.AdPackageJSON{Tier: "gold", MonthlyFee: "549", CommissionRate: "0.22", BonusPoints: 2500}, got.AdPackages[2])
}

func TestDeliveryWorkflow_DisputeAndResolve(t *testing.T) {
	// GIVEN: a paid order with one delivery and a manager on file
	ts := newTestServer(t)
	ts.saveUser(t, "mgr-1", "manager")
	id := ts.payRackOrder(t, "o-1", "c-1").Deliveries[0].ID
	base := "/api/deliveries/" + id

	// the actor header is required
	rec := ts.do(t, http.MethodPost, base+"/delivered", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// only the owning trainer may hand off
	rec = ts.do(t, http.MethodPost, base+"/delivered", nil, "tr-other")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: the trainer hands off
	rec = ts.do(t, http.MethodPost, base+"/delivered", map[string]string{"method": "in_person"}, "tr-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "delivered", decodeAs[TransitionResponse](t, rec).CurrentStatus)

	// a second handoff does not apply
	rec = ts.do(t, http.MethodPost, base+"/delivered", nil, "tr-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// too short an issue description is refused
	rec = ts.do(t, http.MethodPost, base+"/issue", map[string]string{"notes": "  broken  "}, "c-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN: the client reports an issue
	rec = ts.do(t, http.MethodPost, base+"/issue", map[string]string{"notes": "Rack arrived with a bent upright"}, "c-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "disputed", decodeAs[TransitionResponse](t, rec).CurrentStatus)

	disputed := decodeAs[[]DeliveryDTO](t, ts.do(t, http.MethodGet, "/api/deliveries/disputed", nil, ""))
	require.Len(t, disputed, 1)
	assert.Equal(t, "Rack arrived with a bent upright", disputed[0].IssueNotes)

	// THEN: a client may not resolve
	rec = ts.do(t, http.MethodPost, base+"/resolve", map[string]string{"resolution_type": "refund"}, "c-1")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// a manager may
	rec = ts.do(t, http.MethodPost, base+"/resolve", map[string]string{"resolution_type": "refund", "notes": "Refunded"}, "mgr-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decodeAs[TransitionResponse](t, rec).CurrentStatus)

	// AND: the trainer, the client and the manager were told
	ts.h.Notifier.Wait()
	assert.Contains(t, ts.sender.to("c-1"), notify.TemplateDeliveryDelivered)
	assert.Contains(t, ts.sender.to("tr-1"), notify.TemplateDeliveryDisputed)
	assert.Contains(t, ts.sender.to("mgr-1"), notify.TemplateDeliveryDisputed)
	assert.Contains(t, ts.sender.to("c-1"), notify.TemplateDisputeResolved)
}

func TestDeliveryWorkflow_FailedNotificationKeepsTransition(t *testing.T) {
	// GIVEN: one notification channel that always fails
	ts := newTestServer(t)
	broken := &failingSender{}
	ts.h.Notifier.Senders = append([]notify.Sender{broken}, ts.h.Notifier.Senders...)
	id := ts.payRackOrder(t, "o-1", "c-1").Deliveries[0].ID

	// WHEN: the trainer hands off
	rec := ts.do(t, http.MethodPost, "/api/deliveries/"+id+"/delivered", nil, "tr-1")

	// THEN: the transition still succeeds
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeAs[TransitionResponse](t, rec)
	assert.True(t, res.Applied)
	assert.Equal(t, "delivered", res.CurrentStatus)

	// AND: the other channel still delivered the message
	ts.h.Notifier.Wait()
	broken.mu.Lock()
	assert.Positive(t, broken.attempts)
	broken.mu.Unlock()
	assert.Contains(t, ts.sender.to("c-1"), notify.TemplateDeliveryDelivered)

	d := decodeAs[DeliveryDTO](t, ts.do(t, http.MethodGet, "/api/deliveries/"+id, nil, ""))
	assert.Equal(t, "delivered", d.Status)
}

func TestDeliveryWorkflow_Reschedule(t *testing.T) {
	ts := newTestServer(t)
	id := ts.payRackOrder(t, "o-1", "c-1").Deliveries[0].ID
	base := "/api/deliveries/" + id

	// past dates are refused
	rec := ts.do(t, http.MethodPost, base+"/reschedule", map[string]string{"proposed_date": "2025-03-01", "reason": "Away"}, "c-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/reschedule", map[string]string{"proposed_date": "2025-03-20", "reason": "Away"}, "c-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "pending", decodeAs[TransitionResponse](t, rec).CurrentStatus)

	// one request at a time
	rec = ts.do(t, http.MethodPost, base+"/reschedule", map[string]string{"proposed_date": "2025-03-21", "reason": "Still away"}, "c-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	pending := decodeAs[[]DeliveryDTO](t, ts.do(t, http.MethodGet, "/api/trainers/tr-1/deliveries/reschedules", nil, ""))
	require.Len(t, pending, 1)

	rec = ts.do(t, http.MethodPost, base+"/reschedule/approve", nil, "tr-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", decodeAs[TransitionResponse](t, rec).CurrentStatus)

	d := decodeAs[DeliveryDTO](t, ts.do(t, http.MethodGet, base, nil, ""))
	require.NotNil(t, d.ScheduledDate)
	assert.Contains(t, *d.ScheduledDate, "2025-03-20")
}

func TestDeliveryLookups(t *testing.T) {
	ts := newTestServer(t)
	ts.payRackOrder(t, "o-1", "c-1")

	rec := ts.do(t, http.MethodGet, "/api/deliveries/dlv-missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/trainers/tr-1/deliveries?status=pending,ready", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]DeliveryDTO](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/trainers/tr-1/deliveries?status=lost", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/clients/c-1/deliveries", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]DeliveryDTO](t, rec), 1)
}

// =============================================================================
// PARTNERSHIPS
// =============================================================================

func TestPartnership_CreateApproveCancel(t *testing.T) {
	// GIVEN: a pending gold partnership
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/partnerships", map[string]string{
		"trainer_id": "tr-1", "business_id": "biz-1", "package_tier": "gold",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeAs[PartnershipDTO](t, rec)
	assert.Equal(t, "pending", p.Status)
	assert.Equal(t, int64(2000), p.BonusPointsAwarded)

	pending := decodeAs[[]PartnershipDTO](t, ts.do(t, http.MethodGet, "/api/partnerships/pending", nil, ""))
	require.Len(t, pending, 1)

	// WHEN: a manager approves it
	rec = ts.do(t, http.MethodPost, "/api/partnerships/"+p.ID+"/approve", nil, "mgr-1")

	// THEN: it is active, the bonus is paid and the trainer is told
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "active", decodeAs[TransitionResponse](t, rec).CurrentStatus)

	points := decodeAs[PointsSummaryDTO](t, ts.do(t, http.MethodGet, "/api/trainers/tr-1/points", nil, ""))
	assert.Equal(t, int64(2000), points.Account.TotalPoints)

	ts.h.Notifier.Wait()
	assert.Contains(t, ts.sender.to("tr-1"), notify.TemplatePartnershipApproved)

	// approving twice does nothing
	rec = ts.do(t, http.MethodPost, "/api/partnerships/"+p.ID+"/approve", nil, "mgr-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/partnerships/"+p.ID+"/cancel", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decodeAs[TransitionResponse](t, rec).CurrentStatus)
}

func TestPartnership_Validation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/partnerships", map[string]string{
		"trainer_id": "tr-1", "business_id": "biz-1", "package_tier": "diamond",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/partnerships/ap-missing/approve", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/partnerships/ap-missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.do(t, http.MethodGet, "/api/trainers/tr-1/points", nil, "")
	rec = ts.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}
