package messaging

import (
	"slices"
	"testing"
)

func TestNormalizeE164(t *testing.T) {
	if got := NormalizeE164(" +1 (555) 123-4567 "); got != "+15551234567" {
		t.Fatalf("expected +15551234567, got %q", got)
	}
	if got := NormalizeE164(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := NormalizeE164("abc"); got != "" {
		t.Fatalf("expected empty for non-numeric, got %q", got)
	}
}

func TestSanitizePhone(t *testing.T) {
	if got := sanitizePhone("+1 (555) 123-4567"); got != "15551234567" {
		t.Fatalf("expected 15551234567, got %q", got)
	}
}

func TestCandidateFormats(t *testing.T) {
	got := CandidateFormats("+15551234567")
	for _, want := range []string{"+15551234567", "15551234567", "5551234567", "+5551234567"} {
		if !slices.Contains(got, want) {
			t.Fatalf("expected %q in candidates %v", want, got)
		}
	}

	got = CandidateFormats("(555) 123-4567")
	for _, want := range []string{"(555) 123-4567", "5551234567", "15551234567", "+15551234567"} {
		if !slices.Contains(got, want) {
			t.Fatalf("expected %q in candidates %v", want, got)
		}
	}

	if CandidateFormats("") != nil {
		t.Fatal("expected nil for empty input")
	}
}
