package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the order-bump service.
type Metrics struct {
	// Offer selection
	OffersSelected *prometheus.CounterVec
	OffersSkipped  *prometheus.CounterVec

	// Analytics events
	Impressions        *prometheus.CounterVec
	ImpressionsDeduped prometheus.Counter
	Conversions        *prometheus.CounterVec
	Revenue            *prometheus.CounterVec

	// Checkout flow
	BumpsAccepted *prometheus.CounterVec
	BumpsRemoved  *prometheus.CounterVec
	OrdersFinalized prometheus.Counter

	// HTTP
	RequestDuration *prometheus.HistogramVec

	// Rate limiting
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		OffersSelected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "offers_selected_total",
				Help:      "Offers matched and rendered, by checkout placement",
			},
			[]string{"placement"},
		),
		OffersSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "offers_skipped_total",
				Help:      "Offers filtered out during selection, by reason",
			},
			[]string{"reason"},
		),
		Impressions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "impressions_total",
				Help:      "Impression rows recorded",
			},
			[]string{"bump_id"},
		),
		ImpressionsDeduped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "impressions_deduped_total",
				Help:      "Impression calls suppressed by the dedup window",
			},
		),
		Conversions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_total",
				Help:      "Conversion rows recorded",
			},
			[]string{"bump_id"},
		),
		Revenue: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revenue_dollars_total",
				Help:      "Attributed bump revenue",
			},
			[]string{"bump_id"},
		),
		BumpsAccepted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bumps_accepted_total",
				Help:      "Offers accepted into a cart",
			},
			[]string{"bump_id"},
		),
		BumpsRemoved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bumps_removed_total",
				Help:      "Accepted offers removed from a cart",
			},
			[]string{"bump_id"},
		),
		OrdersFinalized: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_finalized_total",
				Help:      "Checkout sessions finalized into orders",
			},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "path", "status"},
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by rate limiting",
			},
			[]string{"path"},
		),
	}
}

// RecordImpression counts one stored impression.
func (m *Metrics) RecordImpression(bumpID int64) {
	m.Impressions.WithLabelValues(strconv.FormatInt(bumpID, 10)).Inc()
}

// RecordImpressionDeduped counts one suppressed impression call.
func (m *Metrics) RecordImpressionDeduped() {
	m.ImpressionsDeduped.Inc()
}

// RecordConversion counts one stored conversion with its revenue.
func (m *Metrics) RecordConversion(bumpID int64, revenue float64) {
	id := strconv.FormatInt(bumpID, 10)
	m.Conversions.WithLabelValues(id).Inc()
	m.Revenue.WithLabelValues(id).Add(revenue)
}

// RecordRequest observes one completed HTTP request.
func (m *Metrics) RecordRequest(method, path string, status int, duration time.Duration) {
	m.RequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordRateLimitHit counts one rate-limited request.
func (m *Metrics) RecordRateLimitHit(path string) {
	m.RateLimitHits.WithLabelValues(path).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
