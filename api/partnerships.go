package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/earnings-engine/adpartner"
	"github.com/warp/earnings-engine/awards"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/notify"
)

// =============================================================================
// AD PARTNERSHIPS
// =============================================================================

func (h *Handler) CreatePartnership(w http.ResponseWriter, r *http.Request) {
	var req CreatePartnershipRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := adpartner.CreateInput{
		TrainerID:  req.TrainerID,
		BusinessID: req.BusinessID,
		Tier:       adpartner.PackageTier(req.PackageTier),
	}
	var err error
	if req.StartDate != "" {
		if in.StartDate, err = generic.ParseDate(req.StartDate); err != nil {
			writeDomainError(w, r, generic.Invalid("start_date", "must be YYYY-MM-DD"))
			return
		}
	}
	if req.EndDate != "" {
		if in.EndDate, err = generic.ParseDate(req.EndDate); err != nil {
			writeDomainError(w, r, generic.Invalid("end_date", "must be YYYY-MM-DD"))
			return
		}
	}

	p, err := h.Ads.Create(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartnershipDTO(p))
}

func (h *Handler) GetPartnership(w http.ResponseWriter, r *http.Request) {
	p, err := h.Ads.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Partnership not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPartnershipDTO(*p))
}

func (h *Handler) ListPendingPartnerships(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPartnershipDTOs(h.Ads.ListPending(r.Context())))
}

func (h *Handler) ListTrainerPartnerships(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPartnershipDTOs(h.Ads.ListForTrainer(r.Context(), chi.URLParam(r, "id"))))
}

func (h *Handler) GetPartnershipSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toAdSummaryDTO(h.Ads.Summary(r.Context(), chi.URLParam(r, "id"))))
}

// ApprovePartnership activates a pending partnership; the approver is the actor.
func (h *Handler) ApprovePartnership(w http.ResponseWriter, r *http.Request) {
	approverID, ok := actor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	res, err := h.Ads.Approve(ctx, id, approverID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if res.Applied {
		if p, err := h.Ads.Get(ctx, id); err == nil && p != nil {
			h.Notifier.Notify(ctx, notify.TemplatePartnershipApproved, map[string]string{
				"partnership_id": p.ID,
				"business_id":    p.BusinessID,
				"package_tier":   string(p.PackageTier),
				"bonus_points":   strconv.FormatInt(p.BonusPointsAwarded, 10),
			}, p.TrainerID)
		}
	}
	writeTransition(w, res)
}

func (h *Handler) CancelPartnership(w http.ResponseWriter, r *http.Request) {
	res, err := h.Ads.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeTransition(w, res)
}

// BillPartnerships materializes due billing periods now instead of waiting
// for the scheduler.
func (h *Handler) BillPartnerships(w http.ResponseWriter, r *http.Request) {
	n, err := h.Ads.BillDuePeriods(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"periods_billed": n})
}

// =============================================================================
// AWARD NOTIFICATIONS
// =============================================================================

// awardNotifier adapts the dispatcher to awards.Notifier.
type awardNotifier struct {
	d *notify.Dispatcher
}

func (n awardNotifier) AwardGranted(ctx context.Context, a awards.Award) {
	n.d.Notify(ctx, notify.TemplateAwardGranted, map[string]string{
		"award_type": string(a.Type),
		"title":      a.Title,
		"points":     strconv.FormatInt(a.Points, 10),
		"period":     time.Date(a.Year, a.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01"),
	}, a.TrainerID)
}
