package telephony

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature header names used by the provider.
const (
	SignatureHeader = "Telnyx-Signature-Ed25519"
	TimestampHeader = "Telnyx-Timestamp"
)

var (
	ErrMissingSignature   = errors.New("telephony: missing signature header")
	ErrSignatureMismatch  = errors.New("telephony: signature mismatch")
	ErrSignatureTimestamp = errors.New("telephony: invalid signature timestamp")
)

// Verifier validates webhook signatures against the provider's published
// Ed25519 public key. The signed message is timestamp + "|" + body.
type Verifier struct {
	publicKey ed25519.PublicKey
	maxSkew   time.Duration
	strict    bool
	now       func() time.Time
}

// NewVerifier builds a Verifier from a base64-encoded public key. When
// strict is false a missing signature header is allowed through, which is
// only appropriate for local debugging.
func NewVerifier(publicKeyB64 string, maxSkew time.Duration, strict bool) (*Verifier, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(publicKeyB64))
	if err != nil {
		return nil, fmt.Errorf("telephony: decode public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("telephony: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	return &Verifier{
		publicKey: ed25519.PublicKey(key),
		maxSkew:   maxSkew,
		strict:    strict,
		now:       time.Now,
	}, nil
}

// Strict reports whether missing signatures are rejected.
func (v *Verifier) Strict() bool {
	return v != nil && v.strict
}

// Verify checks the signature over the raw body. It never panics on
// malformed input; every failure mode maps to an error.
func (v *Verifier) Verify(rawBody []byte, signatureB64, timestamp string) error {
	sig := strings.TrimSpace(signatureB64)
	ts := strings.TrimSpace(timestamp)
	if sig == "" || ts == "" {
		if v.strict {
			return ErrMissingSignature
		}
		return nil
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureTimestamp, err)
	}
	sentAt := time.Unix(sec, 0)
	if diff := v.now().Sub(sentAt); diff > v.maxSkew || diff < -v.maxSkew {
		return fmt.Errorf("%w: skew %s exceeds limit", ErrSignatureTimestamp, diff)
	}
	sigBytes, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: bad base64", ErrSignatureMismatch)
	}
	if len(sigBytes) != ed25519.SignatureSize {
		return fmt.Errorf("%w: bad length", ErrSignatureMismatch)
	}
	signed := append([]byte(ts+"|"), rawBody...)
	if !ed25519.Verify(v.publicKey, signed, sigBytes) {
		return ErrSignatureMismatch
	}
	return nil
}
