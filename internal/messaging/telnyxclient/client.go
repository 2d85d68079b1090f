package telnyxclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultBaseURL   = "https://api.telnyx.com/v2"
	defaultUserAgent = "fieldline-telephony/0.1"
)

var sendTracer = otel.Tracer("fieldline.internal.messaging.telnyxclient")

// Typed send failures. Callers map these to user-facing categories instead
// of surfacing raw provider error strings.
var (
	// ErrAuth means the API key was rejected.
	ErrAuth = errors.New("telnyxclient: authentication failed")
	// ErrInvalidNumber means the provider rejected the from/to number or
	// message format.
	ErrInvalidNumber = errors.New("telnyxclient: invalid number or message")
	// ErrProviderUnavailable means a transient provider failure; the send
	// may be retried.
	ErrProviderUnavailable = errors.New("telnyxclient: provider unavailable")
)

// Config controls how the client behaves.
type Config struct {
	BaseURL            string
	APIKey             string
	MessagingProfileID string
	Timeout            time.Duration
	HTTPClient         *http.Client
	Logger             *slog.Logger
	UserAgent          string
}

// Client wraps the Telnyx messaging REST endpoint.
type Client struct {
	apiKey             string
	baseURL            string
	messagingProfileID string
	httpClient         *http.Client
	logger             *slog.Logger
	userAgent          string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("telnyxclient: API key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		apiKey:             cfg.APIKey,
		baseURL:            baseURL,
		messagingProfileID: cfg.MessagingProfileID,
		httpClient:         httpClient,
		logger:             logger,
		userAgent:          userAgent,
	}, nil
}

// SendMessageRequest is an outbound SMS.
type SendMessageRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

func (r SendMessageRequest) validate() error {
	if strings.TrimSpace(r.From) == "" {
		return errors.New("telnyxclient: from required")
	}
	if strings.TrimSpace(r.To) == "" {
		return errors.New("telnyxclient: to required")
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("telnyxclient: text required")
	}
	return nil
}

// MessageResponse is the provider's view of an accepted message.
type MessageResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// SendMessage triggers an SMS send request.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*MessageResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	ctx, span := sendTracer.Start(ctx, "telnyxclient.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("fieldline.sms.from", req.From),
		attribute.String("fieldline.sms.to", req.To),
	)

	payload := map[string]any{
		"from": req.From,
		"to":   req.To,
		"text": req.Text,
	}
	if c.messagingProfileID != "" {
		payload["messaging_profile_id"] = c.messagingProfileID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telnyxclient: marshal send body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telnyxclient: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telnyxclient: read response: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, respBody); err != nil {
		c.logger.Warn("telnyx send rejected", "status", resp.StatusCode, "to", req.To)
		return nil, err
	}
	var wrapper struct {
		Data MessageResponse `json:"data"`
	}
	if err := json.Unmarshal(respBody, &wrapper); err != nil {
		return nil, fmt.Errorf("telnyxclient: decode response: %w", err)
	}
	if wrapper.Data.ID == "" {
		return nil, errors.New("telnyxclient: response missing message id")
	}
	return &wrapper.Data, nil
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: status %d: %s", ErrInvalidNumber, status, truncate(body, 256))
	default:
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, status)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
