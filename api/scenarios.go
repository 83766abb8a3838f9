/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Every scenario goes through the real engines (the same
	calls the HTTP handlers make), so the data is exactly what production
	traffic would produce.

AVAILABLE SCENARIOS:

	first-sales:      Catalog, a promotion and three paid orders for one trainer
	delivery-dispute: Deliveries in every workflow state, one disputed
	ad-partnerships:  One active and one pending ad partnership
	top-seller:       Two trainers' month, with the monthly awards processed

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed the user directory and product catalog
 3. Record paid orders (earnings, points, deliveries)
 4. Drive workflows forward where the scenario needs it

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "first-sales"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: OrderPaid, the production path these loaders mirror
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/adpartner"
	"github.com/warp/earnings-engine/commission"
	"github.com/warp/earnings-engine/delivery"
	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "first-sales",
		Name:        "First Sales",
		Description: "Catalog, a whey promotion and three paid bundles for one trainer",
		Category:    "earnings",
	},
	{
		ID:          "delivery-dispute",
		Name:        "Delivery Dispute",
		Description: "Deliveries in every state: pending reschedule, confirmed, disputed",
		Category:    "delivery",
	},
	{
		ID:          "ad-partnerships",
		Name:        "Ad Partnerships",
		Description: "An active gold partnership and a pending silver one",
		Category:    "partnerships",
	},
	{
		ID:          "top-seller",
		Name:        "Top Seller",
		Description: "Two trainers' month of sales with the monthly awards processed",
		Category:    "awards",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	loaders := map[string]func(context.Context) error{
		"first-sales":      h.loadFirstSalesScenario,
		"delivery-dispute": h.loadDeliveryDisputeScenario,
		"ad-partnerships":  h.loadAdPartnershipsScenario,
		"top-seller":       h.loadTopSellerScenario,
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", req.ScenarioID)
		return
	}

	ctx := r.Context()
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err.Error())
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), nil)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase deletes all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err.Error())
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SEED DATA
// =============================================================================

var (
	scenarioUsers = []generic.User{
		{ID: "tr-alex", Name: "Alex Rivera", Role: generic.RoleTrainer, Phone: "+15550100001", Email: "alex@example.com"},
		{ID: "tr-bea", Name: "Bea Okafor", Role: generic.RoleTrainer, Phone: "+15550100002", Email: "bea@example.com"},
		{ID: "c-sam", Name: "Sam Lee", Role: generic.RoleClient, Phone: "+15550100101"},
		{ID: "c-jo", Name: "Jo Park", Role: generic.RoleClient, Phone: "+15550100102"},
		{ID: "mgr-kim", Name: "Kim Duarte", Role: generic.RoleManager, Phone: "+15550100201", Email: "kim@example.com"},
	}

	scenarioProducts = []generic.Product{
		{ID: "prod-whey", Name: "Whey Protein 2kg", Price: decimal.RequireFromString("24.95"), RequiresTrainerDelivery: true},
		{ID: "prod-rack", Name: "Squat Rack", Price: decimal.RequireFromString("699.95"), RequiresTrainerDelivery: true},
		{ID: "prod-bands", Name: "Resistance Bands", Price: decimal.RequireFromString("19.99"), RequiresTrainerDelivery: true},
		{ID: "prod-ebook", Name: "Meal Plan eBook", Price: decimal.RequireFromString("9.99"), RequiresTrainerDelivery: false},
	}
)

func (h *Handler) seedDirectory(ctx context.Context) error {
	for _, u := range scenarioUsers {
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for _, p := range scenarioProducts {
		if err := h.Store.SaveProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	return nil
}

func productLine(id, productID string, qty int) earnings.LineItem {
	for _, p := range scenarioProducts {
		if p.ID == productID {
			return earnings.LineItem{ID: id, Type: earnings.LineProduct, ProductID: p.ID, Name: p.Name, Quantity: qty, UnitPrice: p.Price}
		}
	}
	return earnings.LineItem{ID: id, Type: earnings.LineProduct, ProductID: productID, Quantity: qty, UnitPrice: decimal.Zero}
}

func serviceLine(id, name string, qty int, price string) earnings.LineItem {
	return earnings.LineItem{ID: id, Type: earnings.LineService, Name: name, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

// paidOrder totals the lines and records the order the way OrderPaid does.
func (h *Handler) paidOrder(ctx context.Context, id, trainerID, clientID, title string, lines ...earnings.LineItem) ([]delivery.Delivery, error) {
	o := earnings.Order{
		ID:          id,
		TrainerID:   trainerID,
		ClientID:    clientID,
		BundleID:    "bundle-" + id,
		BundleTitle: title,
		LineItems:   lines,
		Total:       decimal.Zero,
		PaidAt:      h.now(),
	}
	for _, li := range lines {
		o.Total = o.Total.Add(commission.LineTotal(li.UnitPrice, li.Quantity))
	}
	for _, u := range scenarioUsers {
		if u.ID == clientID {
			o.ClientName = u.Name
		}
	}
	if _, err := h.Earnings.RecordOrderEarnings(ctx, o); err != nil {
		return nil, fmt.Errorf("record order %s: %w", id, err)
	}
	ds, err := h.Deliveries.CreateForOrder(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("deliveries for %s: %w", id, err)
	}
	return ds, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFirstSalesScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}

	// whey at base + 20% for the current month
	start := generic.StartOfMonth(h.now())
	end := start.AddDate(0, 1, 0).Add(-1)
	if _, err := h.Commission.UpsertPromotion(ctx, commission.Promotion{
		ID:          "promo-whey",
		ProductID:   "prod-whey",
		BonusRate:   decimal.RequireFromString("0.20"),
		ValidFrom:   &start,
		ValidUntil:  &end,
		Description: "Whey launch month",
	}); err != nil {
		return err
	}

	if _, err := h.paidOrder(ctx, "o-1001", "tr-alex", "c-sam", "Home Gym Starter",
		productLine("o-1001-1", "prod-whey", 1),
		productLine("o-1001-2", "prod-rack", 1),
		serviceLine("o-1001-3", "Personal Coaching", 1, "75.00"),
	); err != nil {
		return err
	}
	if _, err := h.paidOrder(ctx, "o-1002", "tr-alex", "c-jo", "Nutrition Kickoff",
		productLine("o-1002-1", "prod-ebook", 1),
		serviceLine("o-1002-2", "Nutrition Consult", 2, "40.00"),
	); err != nil {
		return err
	}
	// Sam comes back: retention bonus instead of new-client bonus
	_, err := h.paidOrder(ctx, "o-1003", "tr-alex", "c-sam", "Refill",
		productLine("o-1003-1", "prod-whey", 2),
	)
	return err
}

func (h *Handler) loadDeliveryDisputeScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}

	ds, err := h.paidOrder(ctx, "o-2001", "tr-alex", "c-sam", "Strength Block",
		productLine("o-2001-1", "prod-rack", 1),
		productLine("o-2001-2", "prod-bands", 1),
		productLine("o-2001-3", "prod-whey", 1),
	)
	if err != nil {
		return err
	}
	if len(ds) != 3 {
		return fmt.Errorf("expected 3 deliveries, got %d", len(ds))
	}
	rack, bands, whey := ds[0].ID, ds[1].ID, ds[2].ID
	for _, d := range ds {
		switch d.OrderItemID {
		case "o-2001-1":
			rack = d.ID
		case "o-2001-2":
			bands = d.ID
		case "o-2001-3":
			whey = d.ID
		}
	}

	// bands: delivered and confirmed
	if _, err := h.Deliveries.MarkDelivered(ctx, bands, "tr-alex", delivery.DeliveredDetails{Method: "in_person"}); err != nil {
		return err
	}
	if _, err := h.Deliveries.ConfirmReceipt(ctx, bands, "c-sam", "All good"); err != nil {
		return err
	}

	// whey: delivered, then disputed
	if _, err := h.Deliveries.MarkDelivered(ctx, whey, "tr-alex", delivery.DeliveredDetails{Notes: "Left at front desk"}); err != nil {
		return err
	}
	if _, _, err := h.Deliveries.ReportIssue(ctx, whey, "c-sam", "The tub arrived with a broken seal"); err != nil {
		return err
	}

	// rack: ready, with a reschedule request pending
	if _, err := h.Deliveries.MarkReady(ctx, rack, "tr-alex"); err != nil {
		return err
	}
	_, err = h.Deliveries.RequestReschedule(ctx, rack, "c-sam", generic.StartOfDay(h.now()).AddDate(0, 0, 7), "Away on a work trip")
	return err
}

func (h *Handler) loadAdPartnershipsScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}

	gold, err := h.Ads.Create(ctx, adpartner.CreateInput{TrainerID: "tr-alex", BusinessID: "biz-ironworks", Tier: adpartner.TierGold})
	if err != nil {
		return err
	}
	if _, err := h.Ads.Approve(ctx, gold.ID, "mgr-kim"); err != nil {
		return err
	}
	_, err = h.Ads.Create(ctx, adpartner.CreateInput{TrainerID: "tr-alex", BusinessID: "biz-greenbowl", Tier: adpartner.TierSilver})
	return err
}

func (h *Handler) loadTopSellerScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}

	// Alex sells a rack bundle to twelve clients, Bea two ebooks
	for i := 1; i <= 12; i++ {
		id := fmt.Sprintf("o-3%03d", i)
		if _, err := h.paidOrder(ctx, id, "tr-alex", fmt.Sprintf("c-demo-%02d", i), "Home Gym Starter",
			productLine(id+"-1", "prod-rack", 1),
			serviceLine(id+"-2", "Personal Coaching", 1, "75.00"),
		); err != nil {
			return err
		}
	}
	for i := 1; i <= 2; i++ {
		id := fmt.Sprintf("o-4%03d", i)
		if _, err := h.paidOrder(ctx, id, "tr-bea", "c-jo", "Nutrition Kickoff",
			productLine(id+"-1", "prod-ebook", 1),
		); err != nil {
			return err
		}
	}

	now := h.now()
	_, err := h.Awards.ProcessMonthlyAwards(ctx, now.Year(), now.Month())
	return err
}
