package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// ProcessedStore records webhook events that were already handled. Postgres
// is the arbiter; Redis is a fast path in front of it and its failures only
// cost us a database round trip.
type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ProcessedStore struct {
	pool  rowQuerier
	cache redis.UniversalClient
	ttl   time.Duration
}

// NewProcessedStore builds a tracker. cache may be nil.
func NewProcessedStore(pool rowQuerier, cache redis.UniversalClient) *ProcessedStore {
	if pool == nil {
		panic("events: pool required")
	}
	return &ProcessedStore{pool: pool, cache: cache, ttl: 24 * time.Hour}
}

func cacheKey(provider, eventID string) string {
	return "processed:" + provider + ":" + eventID
}

// AlreadyProcessed checks if we've seen this provider event id.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if s.cache != nil {
		n, err := s.cache.Exists(ctx, cacheKey(provider, eventID)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
	}
	query := `SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`
	var exists int
	if err := s.pool.QueryRow(ctx, query, provider, eventID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts an event id for the provider, returning false if it
// already exists. The ON CONFLICT insert decides races, not the cache.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	if s.cache != nil {
		// Best-effort; dedupe still holds via the unique constraint.
		_ = s.cache.Set(ctx, cacheKey(provider, eventID), 1, s.ttl).Err()
	}
	return ct.RowsAffected() > 0, nil
}
