package telephony

import (
	"crypto/ed25519"
	"encoding/base64"
	"strconv"
	"testing"
	"time"
)

func newTestVerifier(t *testing.T, strict bool) (*Verifier, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v, err := NewVerifier(base64.StdEncoding.EncodeToString(pub), 5*time.Minute, strict)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v, priv
}

func sign(priv ed25519.PrivateKey, timestamp string, body []byte) string {
	sig := ed25519.Sign(priv, append([]byte(timestamp+"|"), body...))
	return base64.StdEncoding.EncodeToString(sig)
}

func TestVerifyValidSignature(t *testing.T) {
	v, priv := newTestVerifier(t, true)
	body := []byte(`{"data":{"id":"evt-1"}}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	if err := v.Verify(body, sign(priv, ts, body), ts); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyTamperedBody(t *testing.T) {
	v, priv := newTestVerifier(t, true)
	body := []byte(`{"data":{"id":"evt-1"}}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := sign(priv, ts, body)
	if err := v.Verify([]byte(`{"data":{"id":"evt-2"}}`), sig, ts); err == nil {
		t.Fatal("expected mismatch for tampered body")
	}
}

func TestVerifyStaleTimestamp(t *testing.T) {
	v, priv := newTestVerifier(t, true)
	body := []byte(`{}`)
	ts := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	if err := v.Verify(body, sign(priv, ts, body), ts); err == nil {
		t.Fatal("expected stale timestamp rejection")
	}
}

func TestVerifyMissingHeadersStrict(t *testing.T) {
	v, _ := newTestVerifier(t, true)
	if err := v.Verify([]byte(`{}`), "", ""); err == nil {
		t.Fatal("strict mode must reject missing headers")
	}
}

func TestVerifyMissingHeadersLenient(t *testing.T) {
	v, _ := newTestVerifier(t, false)
	if err := v.Verify([]byte(`{}`), "", ""); err != nil {
		t.Fatalf("lenient mode should allow missing headers, got %v", err)
	}
}

func TestVerifyMalformedInputsNeverPanic(t *testing.T) {
	v, _ := newTestVerifier(t, true)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	for _, sig := range []string{"not-base64!!", "AAAA", base64.StdEncoding.EncodeToString([]byte("short"))} {
		if err := v.Verify([]byte(`{}`), sig, ts); err == nil {
			t.Fatalf("signature %q should fail", sig)
		}
	}
	if err := v.Verify([]byte(`{}`), "AAAA", "not-a-number"); err == nil {
		t.Fatal("bad timestamp should fail")
	}
}

func TestNewVerifierRejectsBadKey(t *testing.T) {
	if _, err := NewVerifier("!!!", 0, true); err == nil {
		t.Fatal("expected base64 error")
	}
	if _, err := NewVerifier(base64.StdEncoding.EncodeToString([]byte("too-short")), 0, true); err == nil {
		t.Fatal("expected key length error")
	}
}
