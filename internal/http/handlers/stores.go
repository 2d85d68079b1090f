package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jordanharvey/fieldline/internal/messaging"
	"github.com/jordanharvey/fieldline/internal/messaging/telnyxclient"
	"github.com/jordanharvey/fieldline/internal/routing"
	"github.com/jordanharvey/fieldline/internal/tenant"
)

type conversationStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	FindOrCreateClientByPhone(ctx context.Context, q messaging.Querier, tenantID uuid.UUID, phone string) (messaging.ClientRecord, error)
	FindOrCreateConversation(ctx context.Context, q messaging.Querier, tenantID, clientID uuid.UUID, jobID *uuid.UUID) (messaging.ConversationRecord, error)
	AppendMessage(ctx context.Context, q messaging.Querier, rec messaging.MessageRecord) (messaging.MessageRecord, bool, error)
	UpdateMessageStatus(ctx context.Context, providerMessageID, status string, deliveredAt, failedAt *time.Time) error
}

type tenantResolver interface {
	Resolve(ctx context.Context, destination string) (tenant.Ownership, error)
	RecordRoutingDecision(ctx context.Context, destination, decision string) error
}

type routingAudit interface {
	Append(ctx context.Context, entry routing.LogEntry) error
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type SignatureVerifier interface {
	Verify(rawBody []byte, signatureB64, timestamp string) error
}

type downstreamForwarder interface {
	Forward(ctx context.Context, url string, body []byte) (ForwardResult, error)
}

type smsSender interface {
	SendMessage(ctx context.Context, req telnyxclient.SendMessageRequest) (*telnyxclient.MessageResponse, error)
}
