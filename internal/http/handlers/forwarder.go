package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jordanharvey/fieldline/internal/tenancy"
)

// ErrForwardTimeout distinguishes a downstream deadline from a downstream 5xx.
var ErrForwardTimeout = errors.New("handlers: downstream handler timed out")

// ForwardResult carries the downstream response so the router can proxy
// status and body back unchanged.
type ForwardResult struct {
	Status int
	Body   []byte
}

// Forwarder posts webhook payloads to downstream handlers with a
// service-level bearer credential and a per-call timeout.
type Forwarder struct {
	httpClient  *http.Client
	bearerToken string
	timeout     time.Duration
}

func NewForwarder(bearerToken string, timeout time.Duration, httpClient *http.Client) *Forwarder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Forwarder{
		httpClient:  httpClient,
		bearerToken: bearerToken,
		timeout:     timeout,
	}
}

// Forward posts body to url and returns the downstream status and body.
func (f *Forwarder) Forward(ctx context.Context, url string, body []byte) (ForwardResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ForwardResult{}, fmt.Errorf("handlers: build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.bearerToken)
	}
	if tenantID, ok := tenancy.TenantIDFromContext(ctx); ok {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ForwardResult{}, fmt.Errorf("%w: %s", ErrForwardTimeout, url)
		}
		return ForwardResult{}, fmt.Errorf("handlers: forward to %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ForwardResult{}, fmt.Errorf("handlers: read forward response: %w", err)
	}
	return ForwardResult{Status: resp.StatusCode, Body: respBody}, nil
}
