package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"blogpulse/pkg/errors"
	"blogpulse/pkg/logger"
	"blogpulse/pkg/metrics"
)

// RateLimitByIP limits each client IP to requests per window. A
// non-positive limit disables limiting.
func RateLimitByIP(requests int, window time.Duration, logger *logger.Logger) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.IngestRejected.WithLabelValues("rate_limit").Inc()
			writeErrorResponse(w, r, errors.NewRateLimitError("Rate limit exceeded. Please try again later."), logger)
		}),
	)
}
