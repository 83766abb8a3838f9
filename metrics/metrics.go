// Package metrics holds the Prometheus collectors shared by every engine.
// They register with the default registry on import; the api package
// exposes them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Earnings ledger
	EarningsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnings_records_total",
			Help: "Order earning records by outcome (created|duplicate)",
		},
		[]string{"outcome"},
	)
	EarningsAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnings_amount_total",
			Help: "Trainer earnings recorded, by component (product_commission|service_revenue)",
		},
		[]string{"component"},
	)

	// Commission resolver
	PromotionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "commission_promotion_conflicts_total",
			Help: "Resolutions where more than one promotion was active for a product",
		},
	)

	// Loyalty points
	PointsAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_points_total",
			Help: "Signed points appended to the ledger, by transaction type",
		},
		[]string{"transaction_type"},
	)
	TierPromotions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_tier_promotions_total",
			Help: "Trainers reaching a new tier",
		},
		[]string{"tier"},
	)

	// Delivery workflow
	DeliveryTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_transitions_total",
			Help: "Delivery workflow transition attempts by operation and result (applied|rejected)",
		},
		[]string{"operation", "result"},
	)

	// Ad partnerships
	AdEarningsMaterialized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ad_earnings_materialized_total",
			Help: "Ad earning rows created for partnership billing periods",
		},
	)

	// Monthly awards
	AwardsGranted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awards_granted_total",
			Help: "Trainer awards granted by type",
		},
		[]string{"award_type"},
	)
	AwardRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "awards_run_duration_seconds",
			Help:    "Duration of monthly awards runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern, method and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	// Notifications
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by channel and result (ok|failed)",
		},
		[]string{"channel", "result"},
	)
)
