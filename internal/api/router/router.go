package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jordanharvey/fieldline/internal/http/handlers"
	httpmiddleware "github.com/jordanharvey/fieldline/internal/http/middleware"
	"github.com/jordanharvey/fieldline/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	WebhookRouter  *handlers.WebhookRouter
	SMSWebhook     *handlers.SMSWebhookHandler
	SendSMS        *handlers.SendSMSHandler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Provider webhooks carry permissive CORS headers on every response.
	r.Group(func(webhooks chi.Router) {
		webhooks.Use(httpmiddleware.WebhookCORS)
		if cfg.WebhookRouter != nil {
			webhooks.Post("/webhooks/telnyx/router", cfg.WebhookRouter.Handle)
			webhooks.Options("/webhooks/telnyx/router", noop)
		}
		if cfg.SMSWebhook != nil {
			webhooks.Post("/webhooks/telnyx/sms", cfg.SMSWebhook.Handle)
			webhooks.Options("/webhooks/telnyx/sms", noop)
		}
	})

	if cfg.SendSMS != nil {
		r.Post("/api/sms/send", cfg.SendSMS.Handle)
	}

	return r
}

// noop exists so chi registers OPTIONS; the CORS middleware short-circuits
// before it runs.
func noop(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
