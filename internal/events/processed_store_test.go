package events

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (pgxmock.PgxPoolIface, *miniredis.Miniredis, *ProcessedStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mock, mr, NewProcessedStore(mock, cache)
}

func TestMarkProcessedPopulatesCache(t *testing.T) {
	mock, mr, store := newTestStore(t)

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("telnyx", "evt-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	first, err := store.MarkProcessed(context.Background(), "telnyx", "evt-1")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !first {
		t.Fatal("first mark should report inserted")
	}
	if !mr.Exists("processed:telnyx:evt-1") {
		t.Fatal("cache key not set")
	}

	// Cache hit: no database query expected.
	done, err := store.AlreadyProcessed(context.Background(), "telnyx", "evt-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !done {
		t.Fatal("expected processed via cache")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAlreadyProcessedFallsBackToDatabase(t *testing.T) {
	mock, _, store := newTestStore(t)

	mock.ExpectQuery("SELECT 1 FROM processed_events").
		WithArgs("telnyx", "evt-2").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))

	done, err := store.AlreadyProcessed(context.Background(), "telnyx", "evt-2")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !done {
		t.Fatal("expected processed via database")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkProcessedConflictReportsFalse(t *testing.T) {
	mock, _, store := newTestStore(t)

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("telnyx", "evt-3").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := store.MarkProcessed(context.Background(), "telnyx", "evt-3")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if inserted {
		t.Fatal("conflict must report false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProcessedStoreWorksWithoutCache(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	store := NewProcessedStore(mock, nil)

	mock.ExpectQuery("SELECT 1 FROM processed_events").
		WithArgs("telnyx", "evt-4").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}))

	done, err := store.AlreadyProcessed(context.Background(), "telnyx", "evt-4")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if done {
		t.Fatal("expected not processed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
