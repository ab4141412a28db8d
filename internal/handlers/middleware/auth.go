package middleware

import (
	"context"
	"net/http"

	"github.com/nkiryanov/numbermart/internal/handlers/customerctx"
	"github.com/nkiryanov/numbermart/internal/handlers/render"
	"github.com/nkiryanov/numbermart/internal/models"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (models.Customer, error)
}

// AuthMiddleware puts the authenticated customer into the request context
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			customer, err := as.Auth(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := customerctx.New(r.Context(), customer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects customers lacking c. Must run after AuthMiddleware.
func RequireCapability(c models.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			customer, ok := customerctx.FromContext(r.Context())
			switch {
			case !ok:
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			case !customer.Capabilities.Has(c):
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
