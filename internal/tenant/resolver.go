package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jordanharvey/fieldline/internal/messaging"
)

// ErrNumberNotFound means no tenant owns an active row for the number.
// This is terminal for a request: the router must not guess a tenant.
var ErrNumberNotFound = errors.New("tenant: phone number not configured")

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ownership is the resolved owner of a destination number.
type Ownership struct {
	TenantID            uuid.UUID
	AIDispatcherEnabled bool
}

// Resolver maps destination phone numbers to owning tenants.
type Resolver struct {
	pool rowQuerier
}

func NewResolver(pool rowQuerier) *Resolver {
	if pool == nil {
		panic("tenant: pool required")
	}
	return &Resolver{pool: pool}
}

// Resolve looks up the active owner of a destination number.
func (r *Resolver) Resolve(ctx context.Context, destination string) (Ownership, error) {
	number := messaging.NormalizeE164(destination)
	if number == "" {
		return Ownership{}, ErrNumberNotFound
	}
	var own Ownership
	query := `
		SELECT tenant_id, ai_dispatcher_enabled
		FROM phone_numbers
		WHERE number = $1 AND status = 'active'
	`
	if err := r.pool.QueryRow(ctx, query, number).Scan(&own.TenantID, &own.AIDispatcherEnabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ownership{}, fmt.Errorf("%w: %s", ErrNumberNotFound, number)
		}
		return Ownership{}, fmt.Errorf("tenant: resolve %s: %w", number, err)
	}
	return own, nil
}

// RecordRoutingDecision updates the denormalized last-decision columns.
// Best-effort: callers log the error and move on.
func (r *Resolver) RecordRoutingDecision(ctx context.Context, destination, decision string) error {
	number := messaging.NormalizeE164(destination)
	query := `
		UPDATE phone_numbers
		SET last_routed_decision = $2, last_routed_at = now()
		WHERE number = $1 AND status = 'active'
	`
	if _, err := r.pool.Exec(ctx, query, number, decision); err != nil {
		return fmt.Errorf("tenant: record routing decision: %w", err)
	}
	return nil
}
