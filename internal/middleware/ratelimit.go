package middleware

import (
	"net/http"
	"strings"

	"github.com/tcche/orderbump/internal/config"
	"github.com/tcche/orderbump/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware implements token bucket rate limiting. Checkout
// endpoints share a high-throughput bucket sized for storefront traffic;
// admin endpoints share a smaller one.
type RateLimitMiddleware struct {
	cfg             config.RateLimitConfig
	logger          *zap.Logger
	metrics         *metrics.Metrics
	checkoutLimiter *rate.Limiter
	adminLimiter    *rate.Limiter
}

func NewRateLimitMiddleware(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cfg:             cfg,
		logger:          logger,
		checkoutLimiter: rate.NewLimiter(rate.Limit(cfg.CheckoutRPS), cfg.CheckoutBurst),
		adminLimiter:    rate.NewLimiter(rate.Limit(cfg.AdminRPS), cfg.AdminBurst),
	}
}

func (rl *RateLimitMiddleware) SetMetrics(m *metrics.Metrics) {
	rl.metrics = m
}

func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		var limiter *rate.Limiter
		if rl.isCheckoutEndpoint(r.URL.Path) {
			limiter = rl.checkoutLimiter
		} else {
			limiter = rl.adminLimiter
		}

		if !limiter.Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if rl.metrics != nil {
				rl.metrics.RecordRateLimitHit(r.URL.Path)
			}
			rl.tooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) isCheckoutEndpoint(path string) bool {
	return strings.HasPrefix(path, "/checkout/")
}

func (rl *RateLimitMiddleware) tooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}
