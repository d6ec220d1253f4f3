package mw

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/manasdhir/Voice-Bot/pkg/gateway/ratelimit"
)

// Admission applies the per-client connection limits to next. The session
// slot is held until next returns, which for /ws/stream is when the voice
// session closes.
func Admission(limiter *ratelimit.Limiter, logger *slog.Logger, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		dec := limiter.AdmitSession(ratelimit.ClientKey(r), time.Now())
		if !dec.Allowed {
			reqID, _ := RequestIDFrom(r.Context())
			if logger != nil {
				logger.Warn("voice connection refused", "request_id", reqID, "reason", dec.Reason)
			}
			if dec.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			}
			writeJSONError(w, http.StatusTooManyRequests, errorBody{
				Type:       "rate_limit_error",
				Message:    "too many voice connections: " + dec.Reason,
				RequestID:  reqID,
				RetryAfter: dec.RetryAfter,
			})
			return
		}
		defer dec.Permit.Release()

		next.ServeHTTP(w, r)
	})
}
