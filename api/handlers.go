/*
handlers.go - HTTP API handlers for the earnings and delivery engine

PURPOSE:
  Exposes the commission resolver, earnings ledger, points engine, delivery
  workflow, ad partnership engine and awards calculator over REST. Handlers
  parse and validate the request, call one domain operation, and serialize
  the result.

ENDPOINTS:
  Orders:
    POST   /api/orders/paid                          Record earnings, create deliveries

  Earnings:
    GET    /api/trainers/{id}/earnings/summary       Totals with period-over-period change
    GET    /api/trainers/{id}/earnings/breakdown     By service, product and day
    GET    /api/trainers/{id}/earnings/history       Newest first, paged
    GET    /api/earnings/{orderId}                   One record with its lines
    POST   /api/earnings/{orderId}/status            pending -> confirmed -> paid

  Commission:
    GET    /api/commission/products/{id}?price=      Resolve one product
    POST   /api/commission/bundle                    Price a whole bundle
    PUT    /api/admin/commission/base-rate
    GET    /api/admin/rate-tables                    Loyalty and ad tables in effect
    POST   /api/admin/commission/promotions

  Points:
    GET    /api/trainers/{id}/points                 Account, next tier, benefits
    GET    /api/trainers/{id}/points/history
    POST   /api/trainers/{id}/points/redeem

  Deliveries, partnerships and awards: see deliveries.go and partnerships.go.

ACTORS:
  The acting user is read from the X-Actor-ID header. Authentication is done
  upstream; the header is trusted.

ERROR HANDLING:
  Errors are returned as JSON with the status from statusFor:
  - 400: Validation errors, invalid input
  - 403: Actor lacks the required role
  - 404: Record not found
  - 409: Transition not applicable from the current state
  - 422: Insufficient points, overlapping promotion
  - 503: Store unavailable (retryable)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/adpartner"
	"github.com/warp/earnings-engine/awards"
	"github.com/warp/earnings-engine/commission"
	"github.com/warp/earnings-engine/delivery"
	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/factory"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/notify"
	"github.com/warp/earnings-engine/rewards"
	"github.com/warp/earnings-engine/store/sqlite"
)

// ActorHeader carries the id of the acting user.
const ActorHeader = "X-Actor-ID"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Commission *commission.Resolver
	Earnings   *earnings.Ledger
	Points     *rewards.Engine
	Deliveries *delivery.Service
	Ads        *adpartner.Engine
	Awards     *awards.Calculator
	Notifier   *notify.Dispatcher
	Now        generic.Clock

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires every engine to store. notifier may be nil.
func NewHandler(store *sqlite.Store, notifier *notify.Dispatcher) *Handler {
	points := rewards.NewEngine(store)
	resolver := commission.NewResolver(store)
	calc := awards.NewCalculator(store, points)
	calc.Notifier = awardNotifier{notifier}

	return &Handler{
		Store:      store,
		Commission: resolver,
		Earnings:   earnings.NewLedger(store, resolver, points),
		Points:     points,
		Deliveries: delivery.NewService(store, store, store),
		Ads:        adpartner.NewEngine(store, points),
		Awards:     calc,
		Notifier:   notifier,
		Now:        generic.SystemClock,
		validate:   newValidator(),
	}
}

// SetClock points every engine at clock.
func (h *Handler) SetClock(clock generic.Clock) {
	h.Now = clock
	h.Commission.Now = clock
	h.Earnings.Now = clock
	h.Points.Now = clock
	h.Deliveries.Now = clock
	h.Ads.Now = clock
	h.Awards.Now = clock
	if h.Notifier != nil {
		h.Notifier.Now = clock
	}
}

func (h *Handler) now() time.Time { return generic.NowOr(h.Now) }

// =============================================================================
// ORDERS
// =============================================================================

// OrderPaid records the earnings of a paid order and creates its deliveries.
// Both steps are idempotent, so the commerce platform may redeliver the event.
func (h *Handler) OrderPaid(w http.ResponseWriter, r *http.Request) {
	var req OrderPaidRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	order := req.toOrder()

	res, err := h.Earnings.RecordOrderEarnings(ctx, order)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	ds, err := h.Deliveries.CreateForOrder(ctx, order)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var points int64
	for _, p := range res.Points {
		if !p.Duplicate {
			points += p.Transaction.Points
		}
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, OrderPaidResponse{
		Earning:      toEarningDTO(res.Record),
		Created:      res.Created,
		PointsEarned: points,
		Deliveries:   toDeliveryDTOs(ds),
	})
}

// =============================================================================
// EARNINGS
// =============================================================================

// GetEarningsSummary returns totals for ?period=week|month|year|all or a
// custom ?from=&to= range (inclusive dates).
func (h *Handler) GetEarningsSummary(w http.ResponseWriter, r *http.Request) {
	p, err := h.periodFromQuery(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(h.Earnings.Summary(r.Context(), chi.URLParam(r, "id"), p)))
}

func (h *Handler) GetEarningsBreakdown(w http.ResponseWriter, r *http.Request) {
	p, err := h.periodFromQuery(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(h.Earnings.Breakdown(r.Context(), chi.URLParam(r, "id"), p)))
}

func (h *Handler) GetEarningsHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageFromQuery(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	recs, total := h.Earnings.History(r.Context(), chi.URLParam(r, "id"), limit, offset)
	page := PageDTO[EarningDTO]{Items: make([]EarningDTO, 0, len(recs)), Total: total, Limit: limit, Offset: offset}
	for _, rec := range recs {
		page.Items = append(page.Items, toEarningDTO(rec))
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetEarning(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Earnings.Get(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Earning not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEarningDTO(*rec))
}

func (h *Handler) AdvanceEarningStatus(w http.ResponseWriter, r *http.Request) {
	var req AdvanceEarningRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Earnings.AdvanceStatus(r.Context(), chi.URLParam(r, "orderId"), earnings.Status(req.Status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeTransition(w, res)
}

// =============================================================================
// COMMISSION
// =============================================================================

// ResolveCommission resolves one product at ?price= (and optional ?at=).
func (h *Handler) ResolveCommission(w http.ResponseWriter, r *http.Request) {
	price, err := decimal.NewFromString(r.URL.Query().Get("price"))
	if err != nil {
		writeDomainError(w, r, generic.Invalid("price", "must be a decimal amount"))
		return
	}
	asOf := h.now()
	if at := r.URL.Query().Get("at"); at != "" {
		if asOf, err = time.Parse(time.RFC3339, at); err != nil {
			writeDomainError(w, r, generic.Invalid("at", "must be an RFC 3339 instant"))
			return
		}
	}
	res, err := h.Commission.Resolve(r.Context(), chi.URLParam(r, "id"), price, asOf)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResolutionDTO(res))
}

func (h *Handler) PriceBundle(w http.ResponseWriter, r *http.Request) {
	var req BundleRequest
	if !h.decode(w, r, &req) {
		return
	}
	products := make([]commission.PricedProduct, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, commission.PricedProduct{
			ProductID: p.ProductID, Name: p.Name, UnitPrice: p.UnitPrice, Quantity: p.Quantity,
		})
	}
	services := make([]commission.ServiceLine, 0, len(req.Services))
	for _, s := range req.Services {
		services = append(services, commission.ServiceLine{Name: s.Name, UnitPrice: s.UnitPrice, Quantity: s.Quantity})
	}
	var asOf time.Time
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	table, err := h.Commission.BundleTable(r.Context(), products, services, asOf)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBundleDTO(table))
}

func (h *Handler) SetBaseRate(w http.ResponseWriter, r *http.Request) {
	var req BaseRateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Commission.SetBaseRate(r.Context(), req.Rate); err != nil {
		writeDomainError(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("rate", req.Rate.String()).Msg("base commission rate changed")
	writeJSON(w, http.StatusOK, map[string]string{"base_rate": req.Rate.String()})
}

// GetRateTables returns the loyalty and ad package tables in effect, in the
// rate-table file format.
func (h *Handler) GetRateTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.ToJSON(factory.RateTables{
		Loyalty:      h.Points.Tiers,
		AdPackages:   h.Ads.Packages,
		AdPeriodDays: h.Ads.PeriodDays,
	}))
}

func (h *Handler) UpsertPromotion(w http.ResponseWriter, r *http.Request) {
	var req PromotionRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Commission.UpsertPromotion(r.Context(), commission.Promotion{
		ID:          req.ID,
		ProductID:   req.ProductID,
		BonusRate:   req.BonusRate,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPromotionDTO(p))
}

// =============================================================================
// POINTS
// =============================================================================

func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPointsSummaryDTO(h.Points.Summary(r.Context(), chi.URLParam(r, "id"))))
}

func (h *Handler) GetPointsHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageFromQuery(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	txs, total := h.Points.History(r.Context(), chi.URLParam(r, "id"), limit, offset)
	page := PageDTO[PointTransactionDTO]{Items: make([]PointTransactionDTO, 0, len(txs)), Total: total, Limit: limit, Offset: offset}
	for _, tx := range txs {
		page.Items = append(page.Items, toPointTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Points.Redeem(r.Context(), chi.URLParam(r, "id"), req.Points, req.ReferenceID, req.Description, req.IdempotencyKey)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RedeemResponse{
		Transaction: toPointTransactionDTO(res.Transaction),
		Duplicate:   res.Duplicate,
		Balance:     res.BalanceAfter,
	})
}

// =============================================================================
// AWARDS
// =============================================================================

func (h *Handler) ProcessAwards(w http.ResponseWriter, r *http.Request) {
	var req ProcessAwardsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Awards.ProcessMonthlyAwards(r.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessAwardsResponse{
		Run:         toAwardRunDTO(res.Run),
		Granted:     toAwardDTOs(res.Granted),
		AlreadyHeld: res.AlreadyHeld,
	})
}

// GetAwardsSummary returns ?year=&month=, defaulting to the current month.
func (h *Handler) GetAwardsSummary(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	year, month := now.Year(), int(now.Month())
	var err error
	if v := r.URL.Query().Get("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			writeDomainError(w, r, generic.Invalid("year", "must be a number"))
			return
		}
	}
	if v := r.URL.Query().Get("month"); v != "" {
		if month, err = strconv.Atoi(v); err != nil || month < 1 || month > 12 {
			writeDomainError(w, r, generic.Invalid("month", "must be 1-12"))
			return
		}
	}
	writeJSON(w, http.StatusOK, toAwardsSummaryDTO(h.Awards.Summary(r.Context(), year, time.Month(month))))
}

func (h *Handler) ListTrainerAwards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toAwardDTOs(h.Awards.ListForTrainer(r.Context(), chi.URLParam(r, "id"))))
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (h *Handler) SaveUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u := generic.User{ID: req.ID, Name: req.Name, Role: generic.Role(req.Role), Phone: req.Phone, Email: req.Email}
	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) SaveProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Price.IsNegative() {
		writeDomainError(w, r, generic.Invalid("price", "must not be negative"))
		return
	}
	p := generic.Product{ID: req.ID, Name: req.Name, Price: req.Price, RequiresTrainerDelivery: req.RequiresTrainerDelivery}
	if err := h.Store.SaveProduct(r.Context(), p); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrValidation), errors.Is(err, generic.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrForbidden):
		return http.StatusForbidden
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrStateConflict), errors.Is(err, generic.ErrDuplicateIdempotencyKey):
		return http.StatusConflict
	case errors.Is(err, generic.ErrInsufficientBalance), errors.Is(err, generic.ErrPromotionOverlap):
		return http.StatusUnprocessableEntity
	case generic.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "state_conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	return "internal"
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	resp := ErrorResponse{Error: err.Error(), Code: codeFor(status)}
	var ve *generic.ValidationError
	var ib *generic.InsufficientBalanceError
	var po *generic.PromotionOverlapError
	switch {
	case errors.As(err, &ve):
		resp.Details = map[string]string{"field": ve.Field, "message": ve.Message}
	case errors.As(err, &ib):
		resp.Details = map[string]int64{"available": ib.Available, "requested": ib.Requested}
	case errors.As(err, &po):
		resp.Details = map[string]any{"product_id": po.ProductID, "promotion_ids": po.PromotionIDs}
	}
	writeJSON(w, status, resp)
}

// writeTransition reports a conditional update: 404 when the record does
// not exist, 409 with the observed state when it did not apply.
func writeTransition[S ~string](w http.ResponseWriter, res generic.Result[S]) {
	resp := TransitionResponse{Applied: res.Applied, CurrentStatus: string(res.Current)}
	switch {
	case !res.Found():
		resp.Error = "not found"
		writeJSON(w, http.StatusNotFound, resp)
	case !res.Applied:
		resp.Error = "transition not applicable from " + string(res.Current)
		writeJSON(w, http.StatusConflict, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. On failure it writes
// the error response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeBody(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return h.validateRequest(w, dst)
}

// decodeBody reads a JSON body into dst. An empty body leaves dst zero.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handler) validateRequest(w http.ResponseWriter, dst any) bool {
	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Code: "validation", Details: fields})
	return false
}

// actor returns the X-Actor-ID header, writing 400 when it is missing.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		writeDomainError(w, r, generic.Invalid(ActorHeader, "required"))
		return "", false
	}
	return id, true
}

func (h *Handler) periodFromQuery(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()
	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		f, err := generic.ParseDate(from)
		if err != nil {
			return generic.Period{}, generic.Invalid("from", "must be YYYY-MM-DD")
		}
		t, err := generic.ParseDate(to)
		if err != nil {
			return generic.Period{}, generic.Invalid("to", "must be YYYY-MM-DD")
		}
		return generic.CustomPeriod(f, t)
	}
	kind, err := generic.ParsePeriodKind(q.Get("period"))
	if err != nil {
		return generic.Period{}, err
	}
	return generic.PeriodFor(kind, h.now())
}

func pageFromQuery(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, generic.Invalid("limit", "must be a positive number")
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, generic.Invalid("offset", "must not be negative")
		}
	}
	return limit, offset, nil
}

func parseStatuses(raw string) ([]delivery.Status, error) {
	if raw == "" {
		return nil, nil
	}
	var out []delivery.Status
	for _, s := range strings.Split(raw, ",") {
		st := delivery.Status(strings.TrimSpace(s))
		if !st.Valid() {
			return nil, generic.Invalid("status", fmt.Sprintf("unknown status %q", s))
		}
		out = append(out, st)
	}
	return out, nil
}
