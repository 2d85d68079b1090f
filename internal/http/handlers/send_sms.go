package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jordanharvey/fieldline/internal/messaging"
	"github.com/jordanharvey/fieldline/internal/messaging/telnyxclient"
	observemetrics "github.com/jordanharvey/fieldline/internal/observability/metrics"
	"github.com/jordanharvey/fieldline/internal/tenant"
	"github.com/jordanharvey/fieldline/pkg/logging"
)

// SendSMSHandler sends outbound SMS through the provider and records the
// message on the counterparty's conversation thread. The sending number
// must be an active tenant number; that lookup is what scopes every write.
type SendSMSHandler struct {
	store    conversationStore
	resolver tenantResolver
	sender   smsSender
	logger   *logging.Logger
	metrics  *observemetrics.RoutingMetrics
}

type SendSMSConfig struct {
	Store    conversationStore
	Resolver tenantResolver
	Sender   smsSender
	Logger   *logging.Logger
	Metrics  *observemetrics.RoutingMetrics
}

func NewSendSMSHandler(cfg SendSMSConfig) *SendSMSHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &SendSMSHandler{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		sender:   cfg.Sender,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

type sendSMSRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// Handle processes POST /api/sms/send.
func (h *SendSMSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil {
		writeError(w, http.StatusServiceUnavailable, "sms provider not configured")
		return
	}
	var req sendSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	from := messaging.NormalizeE164(req.From)
	to := messaging.NormalizeE164(req.To)
	if from == "" || to == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "from, to, and text are required")
		return
	}

	ctx := r.Context()
	own, err := h.resolver.Resolve(ctx, from)
	if err != nil {
		if errors.Is(err, tenant.ErrNumberNotFound) {
			writeError(w, http.StatusNotFound, "sending number not configured")
			return
		}
		h.logger.Error("tenant resolution failed", "error", err, "from", from)
		writeError(w, http.StatusInternalServerError, "tenant resolution failed")
		return
	}

	resp, err := h.sender.SendMessage(ctx, telnyxclient.SendMessageRequest{
		From: from,
		To:   to,
		Text: req.Text,
	})
	if err != nil {
		h.respondSendError(w, err)
		if h.metrics != nil {
			h.metrics.ObserveOutbound("failed")
		}
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveOutbound("sent")
	}

	// Record the outbound message on the thread. The send already
	// succeeded, so persistence failures are reported but the provider
	// message id is still returned to the caller.
	convID, msgID, recordErr := h.recordOutbound(r, own, from, to, req.Text, resp.ID)
	if recordErr != nil {
		h.logger.Error("failed to record outbound message", "error", recordErr, "provider_message_id", resp.ID)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":             true,
			"provider_message_id": resp.ID,
			"recorded":            false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"provider_message_id": resp.ID,
		"conversation_id":     convID,
		"message_id":          msgID,
	})
}

func (h *SendSMSHandler) recordOutbound(r *http.Request, own tenant.Ownership, from, to, text, providerMessageID string) (string, string, error) {
	ctx := r.Context()
	tx, err := h.store.Begin(ctx)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	client, err := h.store.FindOrCreateClientByPhone(ctx, tx, own.TenantID, to)
	if err != nil {
		return "", "", err
	}
	conv, err := h.store.FindOrCreateConversation(ctx, tx, own.TenantID, client.ID, nil)
	if err != nil {
		return "", "", err
	}
	msg, _, err := h.store.AppendMessage(ctx, tx, messaging.MessageRecord{
		ConversationID:    conv.ID,
		Direction:         messaging.DirectionOutbound,
		Body:              text,
		Sender:            from,
		Recipient:         to,
		ProviderMessageID: providerMessageID,
		Status:            "sent",
	})
	if err != nil {
		return "", "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", "", err
	}
	return conv.ID.String(), msg.ID.String(), nil
}

// respondSendError maps provider failures to a small set of user-facing
// categories rather than raw provider error strings.
func (h *SendSMSHandler) respondSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, telnyxclient.ErrAuth):
		writeError(w, http.StatusBadGateway, "provider authentication failed")
	case errors.Is(err, telnyxclient.ErrInvalidNumber):
		writeError(w, http.StatusBadRequest, "invalid recipient number or message")
	case errors.Is(err, telnyxclient.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, "provider temporarily unavailable, retry later")
	default:
		h.logger.Error("sms send failed", "error", err)
		writeError(w, http.StatusInternalServerError, "send failed")
	}
}
