package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations, messages, and clients in Postgres. Every
// query is tenant-scoped; nothing here may read or write across tenants.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

const (
	ConversationActive   = "active"
	ConversationArchived = "archived"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

type ClientRecord struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
	Phone    string
}

type ConversationRecord struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ClientID      uuid.UUID
	JobID         *uuid.UUID
	Status        string
	LastMessageAt time.Time
}

type MessageRecord struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	Direction         string
	Body              string
	Sender            string
	Recipient         string
	ProviderMessageID string
	Status            string
	CreatedAt         time.Time
}

// FindOrCreateClientByPhone resolves the counterparty for an inbound number.
// Stored client phones are matched against several formats (raw, E.164,
// digits only, national). When nothing matches, a placeholder client is
// created so every inbound message has an addressable counterparty.
func (s *Store) FindOrCreateClientByPhone(ctx context.Context, q Querier, tenantID uuid.UUID, phone string) (ClientRecord, error) {
	if q == nil {
		q = s.pool
	}
	candidates := CandidateFormats(phone)
	if len(candidates) == 0 {
		return ClientRecord{}, errors.New("messaging: client phone required")
	}
	digits := sanitizePhone(phone)
	var rec ClientRecord
	query := `
		SELECT id, tenant_id, name, phone
		FROM clients
		WHERE tenant_id = $1 AND (phone = ANY($2) OR phone_digits = $3)
		ORDER BY created_at
		LIMIT 1
	`
	err := q.QueryRow(ctx, query, tenantID, candidates, digits).Scan(&rec.ID, &rec.TenantID, &rec.Name, &rec.Phone)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ClientRecord{}, fmt.Errorf("messaging: lookup client by phone: %w", err)
	}

	normalized := NormalizeE164(phone)
	rec = ClientRecord{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     "Client " + normalized,
		Phone:    normalized,
	}
	insert := `
		INSERT INTO clients (id, tenant_id, name, phone, phone_digits)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := q.Exec(ctx, insert, rec.ID, rec.TenantID, rec.Name, rec.Phone, digits); err != nil {
		return ClientRecord{}, fmt.Errorf("messaging: create placeholder client: %w", err)
	}
	return rec, nil
}

// FindOrCreateConversation returns the thread for (tenant, client, job).
// A nil jobID addresses the job-less thread, which is a separate partition
// from any job-scoped thread for the same client. The upsert resurrects an
// archived thread instead of duplicating it, and the partial unique indexes
// make the operation safe under concurrent webhook delivery.
func (s *Store) FindOrCreateConversation(ctx context.Context, q Querier, tenantID, clientID uuid.UUID, jobID *uuid.UUID) (ConversationRecord, error) {
	if q == nil {
		q = s.pool
	}
	rec := ConversationRecord{
		ID:       uuid.New(),
		TenantID: tenantID,
		ClientID: clientID,
		JobID:    jobID,
		Status:   ConversationActive,
	}
	var query string
	var args []any
	if jobID == nil {
		query = `
			INSERT INTO conversations (id, tenant_id, client_id, job_id, status, last_message_at)
			VALUES ($1, $2, $3, NULL, 'active', now())
			ON CONFLICT (tenant_id, client_id) WHERE job_id IS NULL
			DO UPDATE SET status = 'active', last_message_at = now()
			RETURNING id, status, last_message_at
		`
		args = []any{rec.ID, tenantID, clientID}
	} else {
		query = `
			INSERT INTO conversations (id, tenant_id, client_id, job_id, status, last_message_at)
			VALUES ($1, $2, $3, $4, 'active', now())
			ON CONFLICT (tenant_id, client_id, job_id) WHERE job_id IS NOT NULL
			DO UPDATE SET status = 'active', last_message_at = now()
			RETURNING id, status, last_message_at
		`
		args = []any{rec.ID, tenantID, clientID, *jobID}
	}
	if err := q.QueryRow(ctx, query, args...).Scan(&rec.ID, &rec.Status, &rec.LastMessageAt); err != nil {
		return ConversationRecord{}, fmt.Errorf("messaging: find or create conversation: %w", err)
	}
	return rec, nil
}

// AppendMessage inserts a message row. When the provider message id was
// already recorded for the conversation the insert is a no-op and the
// existing row is returned; providers redeliver webhooks and the unique
// index is the arbiter, not an application-level existence check.
func (s *Store) AppendMessage(ctx context.Context, q Querier, rec MessageRecord) (MessageRecord, bool, error) {
	if q == nil {
		q = s.pool
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	insert := `
		INSERT INTO messages (id, conversation_id, direction, body, sender, recipient, provider_message_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		ON CONFLICT (conversation_id, provider_message_id) WHERE provider_message_id IS NOT NULL
		DO NOTHING
		RETURNING id, created_at
	`
	err := q.QueryRow(ctx, insert, rec.ID, rec.ConversationID, rec.Direction, rec.Body,
		rec.Sender, rec.Recipient, rec.ProviderMessageID, rec.Status).Scan(&rec.ID, &rec.CreatedAt)
	if err == nil {
		bump := `UPDATE conversations SET last_message_at = $2 WHERE id = $1`
		if _, err := q.Exec(ctx, bump, rec.ConversationID, rec.CreatedAt); err != nil {
			return MessageRecord{}, false, fmt.Errorf("messaging: bump conversation: %w", err)
		}
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return MessageRecord{}, false, fmt.Errorf("messaging: insert message: %w", err)
	}

	// Conflict path: fetch the row the earlier delivery created.
	existing := `
		SELECT id, created_at
		FROM messages
		WHERE conversation_id = $1 AND provider_message_id = $2
	`
	if err := q.QueryRow(ctx, existing, rec.ConversationID, rec.ProviderMessageID).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return MessageRecord{}, false, fmt.Errorf("messaging: lookup duplicate message: %w", err)
	}
	return rec, false, nil
}

// UpdateMessageStatus applies a delivery receipt by provider message id.
func (s *Store) UpdateMessageStatus(ctx context.Context, providerMessageID, status string, deliveredAt, failedAt *time.Time) error {
	query := `
		UPDATE messages
		SET status = $2,
			delivered_at = COALESCE($3, delivered_at),
			failed_at = COALESCE($4, failed_at)
		WHERE provider_message_id = $1
	`
	if _, err := s.pool.Exec(ctx, query, providerMessageID, status, deliveredAt, failedAt); err != nil {
		return fmt.Errorf("messaging: update message status: %w", err)
	}
	return nil
}
