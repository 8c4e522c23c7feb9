package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// RateLimit limits requests per tenant, or per client IP before auth.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(tenantKey),
		httprate.WithLimitHandler(limitExceeded(windowLength)),
	)
}

// ThreadRateLimit limits requests per tenant and thread, so one busy thread
// cannot use up its tenant's budget.
func ThreadRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(tenantKey, func(r *http.Request) (string, error) {
			return "thread:" + chi.URLParam(r, "threadID"), nil
		}),
		httprate.WithLimitHandler(limitExceeded(windowLength)),
	)
}

func tenantKey(r *http.Request) (string, error) {
	if tenantID := GetTenantID(r.Context()); tenantID != "" {
		return "tenant:" + tenantID, nil
	}
	return "ip:" + r.RemoteAddr, nil
}

func limitExceeded(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", retryAfter)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded","retry_after":` + retryAfter + `}`))
	}
}
