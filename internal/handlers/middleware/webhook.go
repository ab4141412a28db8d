package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/nkiryanov/numbermart/internal/handlers/render"
)

const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret lets through requests carrying the shared secret.
// An empty secret disables the endpoints behind it.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(WebhookSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				render.ServiceError(w, "Invalid webhook secret", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
