package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jordanharvey/fieldline/internal/messaging"
	observemetrics "github.com/jordanharvey/fieldline/internal/observability/metrics"
	"github.com/jordanharvey/fieldline/internal/telephony"
	"github.com/jordanharvey/fieldline/internal/tenant"
	"github.com/jordanharvey/fieldline/pkg/logging"
)

const webhookProvider = "telnyx"

// SMSWebhookHandler ingests provider messaging webhooks into conversation
// threads: inbound messages create or resurrect a thread for the sender,
// delivery receipts update stored message status. It serves both as an HTTP
// endpoint and as the router's in-process SMS target.
type SMSWebhookHandler struct {
	store     conversationStore
	resolver  tenantResolver
	processed processedTracker
	verifier  SignatureVerifier
	logger    *logging.Logger
	metrics   *observemetrics.RoutingMetrics
}

type SMSWebhookConfig struct {
	Store     conversationStore
	Resolver  tenantResolver
	Processed processedTracker
	Verifier  SignatureVerifier
	Logger    *logging.Logger
	Metrics   *observemetrics.RoutingMetrics
}

func NewSMSWebhookHandler(cfg SMSWebhookConfig) *SMSWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &SMSWebhookHandler{
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		processed: cfg.Processed,
		verifier:  cfg.Verifier,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Handle processes POST deliveries addressed directly to the SMS endpoint.
func (h *SMSWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
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
	h.process(w, r, evt)
}

// process handles an already-parsed (and, when routed, already-verified)
// event. Non-inbound events still return 200 so the provider stops
// retrying them.
func (h *SMSWebhookHandler) process(w http.ResponseWriter, r *http.Request, evt telephony.Event) {
	switch {
	case evt.EventType == "message.received":
		h.handleInbound(w, r, evt)
	case strings.HasPrefix(evt.EventType, "message."):
		h.handleDeliveryStatus(w, r, evt)
	case evt.EventType == "":
		// Bare record format carries no event type; direction decides.
		sms, err := evt.DecodeSMS()
		if err == nil && (sms.Direction == "" || sms.Direction == messaging.DirectionInbound) {
			h.handleInbound(w, r, evt)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "skipped": "not an inbound message"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "skipped": "unhandled event type"})
	}
}

func (h *SMSWebhookHandler) handleInbound(w http.ResponseWriter, r *http.Request, evt telephony.Event) {
	ctx := r.Context()
	sms, err := evt.DecodeSMS()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	from := messaging.NormalizeE164(sms.From)
	to := messaging.NormalizeE164(sms.To)
	if to == "" {
		writeError(w, http.StatusBadRequest, "missing destination number")
		return
	}
	if from == "" {
		writeError(w, http.StatusBadRequest, "missing sender number")
		return
	}

	if h.processed != nil && evt.ID != "" {
		if done, err := h.processed.AlreadyProcessed(ctx, webhookProvider, evt.ID); err != nil {
			h.logger.Error("processed lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "processing error")
			return
		} else if done {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "duplicate": true})
			return
		}
	}

	own, err := h.resolver.Resolve(ctx, to)
	if err != nil {
		if errors.Is(err, tenant.ErrNumberNotFound) {
			writeError(w, http.StatusNotFound, "Phone number not configured")
			return
		}
		h.logger.Error("tenant resolution failed", "error", err, "to", to)
		writeError(w, http.StatusInternalServerError, "tenant resolution failed")
		return
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		h.logger.Error("begin tx failed", "error", err)
		writeError(w, http.StatusInternalServerError, "processing error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	client, err := h.store.FindOrCreateClientByPhone(ctx, tx, own.TenantID, from)
	if err != nil {
		h.logger.Error("client resolution failed", "error", err, "tenant_id", own.TenantID.String())
		writeError(w, http.StatusInternalServerError, "processing error")
		return
	}
	conv, err := h.store.FindOrCreateConversation(ctx, tx, own.TenantID, client.ID, nil)
	if err != nil {
		h.logger.Error("conversation resolution failed", "error", err, "tenant_id", own.TenantID.String())
		writeError(w, http.StatusInternalServerError, "processing error")
		return
	}
	msg, inserted, err := h.store.AppendMessage(ctx, tx, messaging.MessageRecord{
		ConversationID:    conv.ID,
		Direction:         messaging.DirectionInbound,
		Body:              sms.Text,
		Sender:            from,
		Recipient:         to,
		ProviderMessageID: sms.MessageID,
		Status:            defaultString(sms.Status, "received"),
	})
	if err != nil {
		h.logger.Error("message insert failed", "error", err, "conversation_id", conv.ID.String())
		writeError(w, http.StatusInternalServerError, "processing error")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.logger.Error("commit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "processing error")
		return
	}

	if h.processed != nil && evt.ID != "" {
		if _, err := h.processed.MarkProcessed(ctx, webhookProvider, evt.ID); err != nil {
			h.logger.Error("failed to mark event processed", "error", err, "event_id", evt.ID)
		}
	}
	if h.metrics != nil {
		h.metrics.ObserveInbound(evt.EventType, msg.Status)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"conversation_id": conv.ID.String(),
		"client_id":       client.ID.String(),
		"message_id":      msg.ID.String(),
		"duplicate":       !inserted,
	})
}

func (h *SMSWebhookHandler) handleDeliveryStatus(w http.ResponseWriter, r *http.Request, evt telephony.Event) {
	sms, err := evt.DecodeSMS()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if sms.MessageID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "skipped": "no message id"})
		return
	}
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	status := sms.Status
	if status == "" {
		// message.delivered etc. imply the status in the event name.
		status = strings.TrimPrefix(evt.EventType, "message.")
	}
	var deliveredAt, failedAt *time.Time
	switch strings.ToLower(status) {
	case "delivered", "finalized":
		deliveredAt = &occurred
	case "undelivered", "failed", "sending_failed":
		failedAt = &occurred
	}
	if err := h.store.UpdateMessageStatus(r.Context(), sms.MessageID, status, deliveredAt, failedAt); err != nil {
		h.logger.Error("delivery status update failed", "error", err, "provider_message_id", sms.MessageID)
		writeError(w, http.StatusInternalServerError, "processing error")
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveInbound(evt.EventType, status)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("handlers: read body: %w", err)
	}
	return body, nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
