/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     zerolog request logger stored in the request context
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /healthz, /metrics      Liveness and Prometheus
  /api/orders/*           Order-paid events
  /api/trainers/{id}/*    Trainer views: earnings, points, deliveries, partnerships, awards
  /api/clients/{id}/*     Client views
  /api/deliveries/*       Delivery workflow
  /api/partnerships/*     Ad partnerships
  /api/commission/*       Rate queries
  /api/admin/*            Rates, promotions, awards runs, billing, directory
  /api/scenarios/*        Demo scenarios

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/warp/earnings-engine/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, logger zerolog.Logger, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/orders/paid", h.OrderPaid)

		r.Get("/earnings/{orderId}", h.GetEarning)
		r.Post("/earnings/{orderId}/status", h.AdvanceEarningStatus)

		r.Route("/commission", func(r chi.Router) {
			r.Get("/products/{id}", h.ResolveCommission)
			r.Post("/bundle", h.PriceBundle)
		})

		// Trainer views
		r.Route("/trainers/{id}", func(r chi.Router) {
			r.Get("/earnings/summary", h.GetEarningsSummary)
			r.Get("/earnings/breakdown", h.GetEarningsBreakdown)
			r.Get("/earnings/history", h.GetEarningsHistory)

			r.Get("/points", h.GetPoints)
			r.Get("/points/history", h.GetPointsHistory)
			r.Post("/points/redeem", h.RedeemPoints)

			r.Get("/deliveries", h.ListTrainerDeliveries)
			r.Get("/deliveries/stats", h.GetDeliveryStats)
			r.Get("/deliveries/reschedules", h.ListPendingReschedules)

			r.Get("/partnerships", h.ListTrainerPartnerships)
			r.Get("/partnerships/summary", h.GetPartnershipSummary)

			r.Get("/awards", h.ListTrainerAwards)
		})

		r.Get("/clients/{id}/deliveries", h.ListClientDeliveries)

		// Delivery workflow
		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/disputed", h.ListDisputedDeliveries)
			r.Get("/{id}", h.GetDelivery)
			r.Post("/{id}/ready", h.MarkReady)
			r.Post("/{id}/delivered", h.MarkDelivered)
			r.Post("/{id}/confirm", h.ConfirmReceipt)
			r.Post("/{id}/issue", h.ReportIssue)
			r.Post("/{id}/resolve", h.ResolveDispute)
			r.Post("/{id}/reschedule", h.RequestReschedule)
			r.Post("/{id}/reschedule/approve", h.ApproveReschedule)
			r.Post("/{id}/reschedule/reject", h.RejectReschedule)
		})

		// Ad partnerships
		r.Route("/partnerships", func(r chi.Router) {
			r.Post("/", h.CreatePartnership)
			r.Get("/pending", h.ListPendingPartnerships)
			r.Get("/{id}", h.GetPartnership)
			r.Post("/{id}/approve", h.ApprovePartnership)
			r.Post("/{id}/cancel", h.CancelPartnership)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Put("/commission/base-rate", h.SetBaseRate)
			r.Post("/commission/promotions", h.UpsertPromotion)
			r.Get("/rate-tables", h.GetRateTables)
			r.Post("/awards/process", h.ProcessAwards)
			r.Get("/awards/summary", h.GetAwardsSummary)
			r.Post("/partnerships/bill", h.BillPartnerships)
			r.Post("/users", h.SaveUser)
			r.Post("/products", h.SaveProduct)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger puts a request-scoped logger in the context and logs each
// request once it completes.
func requestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			log := base.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(log.WithContext(r.Context())))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.HTTPRequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(elapsed.Seconds())
			log.Info().
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", elapsed).
				Msg("request")
		})
	}
}
