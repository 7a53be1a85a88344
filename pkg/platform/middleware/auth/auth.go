// Package auth authenticates operator requests carrying an admin bearer token.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"idregistry/internal/platform/admintoken"
	"idregistry/internal/registry/authz"
	dErrors "idregistry/pkg/domain-errors"
	"idregistry/pkg/platform/httputil"
	request "idregistry/pkg/platform/middleware/request"
	"idregistry/pkg/requestcontext"
)

// TokenValidator verifies an admin bearer token.
type TokenValidator interface {
	Validate(tokenString string) (*admintoken.Claims, error)
}

// RequireAdmin rejects requests without a valid bearer token. On success the
// token subject becomes the request actor and its permissions become the
// request's authorization capability.
func RequireAdmin(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, err)
				return
			}

			ctx = requestcontext.WithActor(ctx, claims.Subject)
			ctx = authz.WithCapability(ctx, authz.Claims{
				Subject:     claims.Subject,
				Permissions: claims.Permissions,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
