package tenancy

import (
	"context"
	"testing"
)

func TestTenantIDRoundTrip(t *testing.T) {
	ctx := WithTenantID(context.Background(), "tenant-123")
	got, ok := TenantIDFromContext(ctx)
	if !ok || got != "tenant-123" {
		t.Fatalf("expected tenant-123, got %q ok=%v", got, ok)
	}
}

func TestTenantIDAbsent(t *testing.T) {
	if _, ok := TenantIDFromContext(context.Background()); ok {
		t.Fatal("expected no tenant id on empty context")
	}
}

func TestTenantIDEmptyValue(t *testing.T) {
	ctx := WithTenantID(context.Background(), "")
	if _, ok := TenantIDFromContext(ctx); ok {
		t.Fatal("empty tenant id should not report ok")
	}
}
