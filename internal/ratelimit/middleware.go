package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	dErrors "idregistry/pkg/domain-errors"
	"idregistry/pkg/platform/httputil"
	"idregistry/pkg/requestcontext"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderStatus    = "X-RateLimit-Status"
)

// Middleware rejects requests over the per-IP limit with 429. Limiter errors
// let the request through.
func Middleware(limiter *Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			res, err := limiter.Check(ctx, IPKey(ip))
			if err != nil {
				logger.ErrorContext(ctx, "failed to check rate limit", "error", err, "client_ip", ip)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(HeaderLimit, strconv.Itoa(res.Limit))
			w.Header().Set(HeaderRemaining, strconv.Itoa(res.Remaining))
			w.Header().Set(HeaderReset, strconv.FormatInt(res.ResetAt.Unix(), 10))
			if res.Degraded {
				w.Header().Set(HeaderStatus, "degraded")
			}

			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter(requestcontext.Now(ctx))))
				httputil.WriteError(w, dErrors.WithReason(dErrors.CodeTooManyRequests, "RATE_LIMITED",
					"too many requests from this address, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
