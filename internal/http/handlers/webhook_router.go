package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/jordanharvey/fieldline/internal/messaging"
	observemetrics "github.com/jordanharvey/fieldline/internal/observability/metrics"
	"github.com/jordanharvey/fieldline/internal/routing"
	"github.com/jordanharvey/fieldline/internal/telephony"
	"github.com/jordanharvey/fieldline/internal/tenancy"
	"github.com/jordanharvey/fieldline/internal/tenant"
	"github.com/jordanharvey/fieldline/pkg/logging"
)

// WebhookRouter is the single entry point for provider webhooks. It
// verifies the signature, classifies the event as SMS or voice, resolves
// the owning tenant by destination number, and dispatches to one of three
// targets: the SMS ingestion handler, the AI dispatcher, or the basic
// telephony handler. It holds no state of its own beyond the audit log.
type WebhookRouter struct {
	verifier   SignatureVerifier
	resolver   tenantResolver
	audit      routingAudit
	forwarder  downstreamForwarder
	sms        *SMSWebhookHandler
	logger     *logging.Logger
	metrics    *observemetrics.RoutingMetrics
	smsURL     string
	aiURL      string
	basicURL   string
}

type WebhookRouterConfig struct {
	Verifier  SignatureVerifier
	Resolver  tenantResolver
	Audit     routingAudit
	Forwarder downstreamForwarder
	// SMS handles messaging events in-process when SMSIngestURL is empty.
	SMS               *SMSWebhookHandler
	Logger            *logging.Logger
	Metrics           *observemetrics.RoutingMetrics
	SMSIngestURL      string
	AIDispatcherURL   string
	BasicTelephonyURL string
}

func NewWebhookRouter(cfg WebhookRouterConfig) *WebhookRouter {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookRouter{
		verifier:  cfg.Verifier,
		resolver:  cfg.Resolver,
		audit:     cfg.Audit,
		forwarder: cfg.Forwarder,
		sms:       cfg.SMS,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		smsURL:    cfg.SMSIngestURL,
		aiURL:     cfg.AIDispatcherURL,
		basicURL:  cfg.BasicTelephonyURL,
	}
}

// Handle processes POST webhook deliveries.
func (h *WebhookRouter) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if h.verifier != nil {
		sig := r.Header.Get(telephony.SignatureHeader)
		ts := r.Header.Get(telephony.TimestampHeader)
		if err := h.verifier.Verify(body, sig, ts); err != nil {
			h.logger.Warn("invalid webhook signature", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}
	evt, err := telephony.ParseEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	kind := telephony.Classify(evt)
	h.logger.Info("webhook classified",
		"event_id", evt.ID,
		"event_type", evt.EventType,
		"kind", kind.String(),
	)
	switch kind {
	case telephony.KindSMS:
		h.routeSMS(w, r, evt, body)
	default:
		h.routeVoice(w, r, evt, body)
	}
	if h.metrics != nil {
		h.metrics.ObserveWebhookLatency(evt.EventType, time.Since(start).Seconds())
	}
}

func (h *WebhookRouter) routeSMS(w http.ResponseWriter, r *http.Request, evt telephony.Event, body []byte) {
	if h.smsURL != "" && h.forwarder != nil {
		h.proxy(w, r, h.smsURL, body, "sms_ingest")
		return
	}
	if h.sms == nil {
		writeError(w, http.StatusServiceUnavailable, "sms ingestion not configured")
		return
	}
	h.sms.process(w, r, evt)
}

func (h *WebhookRouter) routeVoice(w http.ResponseWriter, r *http.Request, evt telephony.Event, body []byte) {
	voice, err := evt.DecodeVoice()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	to := messaging.NormalizeE164(voice.To)
	if to == "" {
		writeError(w, http.StatusBadRequest, "missing destination number")
		return
	}
	own, err := h.resolver.Resolve(r.Context(), to)
	if err != nil {
		if errors.Is(err, tenant.ErrNumberNotFound) {
			writeError(w, http.StatusNotFound, "Phone number not configured")
			return
		}
		h.logger.Error("tenant resolution failed", "error", err, "to", to)
		writeError(w, http.StatusInternalServerError, "tenant resolution failed")
		return
	}
	r = r.WithContext(tenancy.WithTenantID(r.Context(), own.TenantID.String()))

	decision := routing.DecisionBasicTelephony
	target := h.basicURL
	if own.AIDispatcherEnabled {
		decision = routing.DecisionAIDispatcher
		target = h.aiURL
	}
	h.logger.Info("voice webhook routed",
		"to", to,
		"from", messaging.NormalizeE164(voice.From),
		"decision", decision,
		"tenant_id", own.TenantID.String(),
		"call_control_id", voice.CallControlID,
	)
	if h.metrics != nil {
		h.metrics.ObserveDecision(decision)
	}

	// Audit trail and denormalized stats are fire-and-forget; a logging
	// outage must not stop call routing.
	if h.audit != nil {
		entry := routing.LogEntry{
			PhoneNumber:   to,
			CallerPhone:   messaging.NormalizeE164(voice.From),
			Decision:      decision,
			AIEnabled:     own.AIDispatcherEnabled,
			CallControlID: voice.CallControlID,
			Metadata:      map[string]string{"event_type": evt.EventType, "event_id": evt.ID},
		}
		if err := h.audit.Append(r.Context(), entry); err != nil {
			h.logger.Error("routing audit append failed", "error", err)
		}
	}
	if err := h.resolver.RecordRoutingDecision(r.Context(), to, decision); err != nil {
		h.logger.Error("routing stat update failed", "error", err)
	}

	if target == "" || h.forwarder == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "decision": decision})
		return
	}
	h.proxy(w, r, target, body, decision)
}

// proxy forwards the original payload and passes the downstream status and
// body back unchanged.
func (h *WebhookRouter) proxy(w http.ResponseWriter, r *http.Request, url string, body []byte, destination string) {
	res, err := h.forwarder.Forward(r.Context(), url, body)
	if err != nil {
		if errors.Is(err, ErrForwardTimeout) {
			h.logger.Error("downstream handler timed out", "destination", destination)
			writeError(w, http.StatusGatewayTimeout, "downstream handler timed out")
			return
		}
		h.logger.Error("downstream forward failed", "error", err, "destination", destination)
		writeError(w, http.StatusBadGateway, "downstream handler unreachable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Status)
	_, _ = w.Write(res.Body)
}
