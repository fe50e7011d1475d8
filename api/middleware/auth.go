package middleware

import (
	"net/http"
	"strings"

	"github.com/selliahq/payments-backend/api/responses"
	pkgauth "github.com/selliahq/payments-backend/pkg/auth"
	"github.com/selliahq/payments-backend/pkg/config"
	pkgerrors "github.com/selliahq/payments-backend/pkg/errors"
	"github.com/selliahq/payments-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// tenant and actor claims. Every merchant-facing route below this middleware
// is tenant-scoped through the context, never through request parameters.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithTenantID(r.Context(), claims.TenantID)
			ctx = WithActorUID(ctx, claims.ActorUID)

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"tenant_id": claims.TenantID,
					"actor_uid": claims.ActorUID,
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
