package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/jordanharvey/fieldline/internal/messaging"
)

// Registers a tenant phone number so webhooks for it route somewhere
// during local development.
func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run main.go <tenant_id> <number> [ai|basic]")
		fmt.Println("Example: go run main.go 6f1c9f0e-2a51-4f4e-9a35-16f6a27e0b11 +15551234567 ai")
		os.Exit(1)
	}

	tenantID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Printf("Error: tenant_id must be a UUID: %v\n", err)
		os.Exit(1)
	}
	// Webhook lookups are keyed on the normalized form, so store that.
	number := messaging.NormalizeE164(os.Args[2])
	if number == "" {
		fmt.Printf("Error: %q is not a usable phone number\n", os.Args[2])
		os.Exit(1)
	}
	aiEnabled := len(os.Args) > 3 && os.Args[3] == "ai"

	_ = godotenv.Load()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Println("Error: DATABASE_URL environment variable not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		fmt.Printf("Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	query := `
		INSERT INTO phone_numbers (number, tenant_id, ai_dispatcher_enabled, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (number) WHERE status = 'active'
		DO UPDATE SET tenant_id = EXCLUDED.tenant_id, ai_dispatcher_enabled = EXCLUDED.ai_dispatcher_enabled,
			updated_at = now()
	`
	if _, err := conn.Exec(ctx, query, number, tenantID, aiEnabled); err != nil {
		fmt.Printf("Error seeding phone number: %v\n", err)
		os.Exit(1)
	}

	mode := "basic_telephony"
	if aiEnabled {
		mode = "ai_dispatcher"
	}
	fmt.Printf("Seeded %s for tenant %s (%s)\n", number, tenantID, mode)
}
