package middleware

import "net/http"

// Webhook CORS is intentionally wide open: the provider calls these
// endpoints server-to-server and must see permissive headers on every
// response, including its custom signature headers.
const (
	corsAllowedHeaders = "Authorization, Content-Type, Telnyx-Signature-Ed25519, Telnyx-Timestamp"
	corsAllowedMethods = "POST, OPTIONS"
)

// WebhookCORS sets wildcard CORS headers on every response and
// short-circuits OPTIONS preflight with an empty 200.
func WebhookCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
		w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
