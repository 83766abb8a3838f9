package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/earnings-engine/delivery"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/notify"
)

// =============================================================================
// DELIVERY QUERIES
// =============================================================================

func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.Deliveries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "Delivery not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryDTO(*d))
}

// ListTrainerDeliveries accepts ?status=pending,ready.
func (h *Handler) ListTrainerDeliveries(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryDTOs(h.Deliveries.ListForTrainer(r.Context(), chi.URLParam(r, "id"), statuses...)))
}

func (h *Handler) ListClientDeliveries(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryDTOs(h.Deliveries.ListForClient(r.Context(), chi.URLParam(r, "id"), statuses...)))
}

func (h *Handler) ListDisputedDeliveries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toDeliveryDTOs(h.Deliveries.ListDisputed(r.Context())))
}

func (h *Handler) ListPendingReschedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toDeliveryDTOs(h.Deliveries.ListPendingReschedules(r.Context(), chi.URLParam(r, "id"))))
}

func (h *Handler) GetDeliveryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toDeliveryStatsDTO(h.Deliveries.Stats(r.Context(), chi.URLParam(r, "id"))))
}

// =============================================================================
// DELIVERY TRANSITIONS
// =============================================================================

// MarkReady is called by the owning trainer.
func (h *Handler) MarkReady(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.Deliveries.MarkReady(r.Context(), id, trainerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if res.Applied {
		h.notifyDelivery(r.Context(), id, notify.TemplateDeliveryReady, nil, toClient)
	}
	writeTransition(w, res)
}

func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := actor(w, r)
	if !ok {
		return
	}
	var req MarkDeliveredRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.Deliveries.MarkDelivered(r.Context(), id, trainerID, delivery.DeliveredDetails{
		Notes: req.Notes, Method: req.Method, TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if res.Applied {
		h.notifyDelivery(r.Context(), id, notify.TemplateDeliveryDelivered, nil, toClient)
	}
	writeTransition(w, res)
}

// ConfirmReceipt is called by the owning client.
func (h *Handler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	clientID, ok := actor(w, r)
	if !ok {
		return
	}
	var req ConfirmReceiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.Deliveries.ConfirmReceipt(r.Context(), id, clientID, req.Notes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if res.Applied {
		h.notifyDelivery(r.Context(), id, notify.TemplateDeliveryConfirmed, nil, toTrainer)
	}
	writeTransition(w, res)
}

// ReportIssue disputes a delivered item. Notes are trimmed before the
// minimum length is checked.
func (h *Handler) ReportIssue(w http.ResponseWriter, r *http.Request) {
	clientID, ok := actor(w, r)
	if !ok {
		return
	}
	var req ReportIssueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Notes = strings.TrimSpace(req.Notes)
	if !h.validateRequest(w, &req) {
		return
	}

	ctx := r.Context()
	res, issue, err := h.Deliveries.ReportIssue(ctx, chi.URLParam(r, "id"), clientID, req.Notes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if issue != nil {
		data := map[string]string{
			"delivery_id":  issue.DeliveryID,
			"order_id":     issue.OrderID,
			"product_name": issue.ProductName,
			"notes":        issue.Notes,
		}
		h.Notifier.Notify(ctx, notify.TemplateDeliveryDisputed, data, issue.TrainerID)
		h.Notifier.NotifyManagers(ctx, notify.TemplateDeliveryDisputed, data)
	}
	writeTransition(w, res)
}

// ResolveDispute is called by a manager, coordinator or admin.
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	managerID, ok := actor(w, r)
	if !ok {
		return
	}
	var req ResolveDisputeRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.Deliveries.ResolveDispute(r.Context(), id, managerID, delivery.ResolutionType(req.ResolutionType), req.Notes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if res.Applied {
		h.notifyDelivery(r.Context(), id, notify.TemplateDisputeResolved,
			map[string]string{"resolution_type": req.ResolutionType}, toTrainer, toClient)
	}
	writeTransition(w, res)
}

// =============================================================================
// RESCHEDULE
// =============================================================================

func (h *Handler) RequestReschedule(w http.ResponseWriter, r *http.Request) {
	clientID, ok := actor(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	proposed, err := generic.ParseDate(req.ProposedDate)
	if err != nil {
		writeDomainError(w, r, generic.Invalid("proposed_date", "must be YYYY-MM-DD"))
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.Deliveries.RequestReschedule(r.Context(), id, clientID, proposed, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if res.Applied {
		h.notifyDelivery(r.Context(), id, notify.TemplateRescheduleRequested,
			map[string]string{"proposed_date": req.ProposedDate, "reason": req.Reason}, toTrainer)
	}
	writeTransition(w, res)
}

func (h *Handler) ApproveReschedule(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.Deliveries.ApproveReschedule(r.Context(), id, trainerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if res.Applied {
		h.notifyDelivery(r.Context(), id, notify.TemplateRescheduleAnswered,
			map[string]string{"answer": string(delivery.RescheduleApproved)}, toClient)
	}
	writeTransition(w, res)
}

func (h *Handler) RejectReschedule(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := actor(w, r)
	if !ok {
		return
	}
	var req RejectRescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.Deliveries.RejectReschedule(r.Context(), id, trainerID, req.Note)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if res.Applied {
		h.notifyDelivery(r.Context(), id, notify.TemplateRescheduleAnswered,
			map[string]string{"answer": string(delivery.RescheduleRejected), "note": req.Note}, toClient)
	}
	writeTransition(w, res)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type recipient func(d delivery.Delivery) string

func toClient(d delivery.Delivery) string  { return d.ClientID }
func toTrainer(d delivery.Delivery) string { return d.TrainerID }

// notifyDelivery loads the delivery after a committed transition and sends
// template to the chosen parties. A failed load only costs the message.
func (h *Handler) notifyDelivery(ctx context.Context, id, template string, extra map[string]string, to ...recipient) {
	if h.Notifier == nil {
		return
	}
	d, err := h.Deliveries.Get(ctx, id)
	if err != nil || d == nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("delivery_id", id).Str("template", template).Msg("notification skipped")
		return
	}
	data := map[string]string{
		"delivery_id":  d.ID,
		"order_id":     d.OrderID,
		"product_name": d.ProductName,
		"status":       string(d.Status),
	}
	for k, v := range extra {
		data[k] = v
	}
	ids := make([]string, 0, len(to))
	for _, pick := range to {
		ids = append(ids, pick(*d))
	}
	h.Notifier.Notify(ctx, template, data, ids...)
}
