package routing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Decisions a voice webhook can be routed to.
const (
	DecisionAIDispatcher   = "ai_dispatcher"
	DecisionBasicTelephony = "basic_telephony"
)

// LogEntry is one append-only audit row. The router never reads these back;
// they exist for operator visibility only.
type LogEntry struct {
	PhoneNumber   string
	CallerPhone   string
	Decision      string
	AIEnabled     bool
	CallControlID string
	Metadata      map[string]string
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// LogStore appends routing decisions to call_routing_logs.
type LogStore struct {
	pool execer
}

func NewLogStore(pool execer) *LogStore {
	if pool == nil {
		panic("routing: pool required")
	}
	return &LogStore{pool: pool}
}

// Append writes one audit row. Failures must not block routing; callers
// treat errors as log-and-continue.
func (s *LogStore) Append(ctx context.Context, entry LogEntry) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("routing: marshal metadata: %w", err)
	}
	query := `
		INSERT INTO call_routing_logs (phone_number, caller_phone, routing_decision, ai_enabled, call_control_id, metadata)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`
	if _, err := s.pool.Exec(ctx, query, entry.PhoneNumber, entry.CallerPhone, entry.Decision,
		entry.AIEnabled, entry.CallControlID, meta); err != nil {
		return fmt.Errorf("routing: append log entry: %w", err)
	}
	return nil
}
