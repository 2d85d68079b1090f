package main

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

func TestServeDefaultsEmptyPath(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Fatalf("expected root path, got %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})

	resp, err := serve(context.Background(), h, events.APIGatewayV2HTTPRequest{})
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServeDecodesBase64Body(t *testing.T) {
	const body = `{"event_type":"message.received"}`
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ := io.ReadAll(r.Body)
		if string(got) != body {
			t.Fatalf("expected decoded body, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
	})

	resp, err := serve(context.Background(), h, events.APIGatewayV2HTTPRequest{
		RawPath:         "/webhooks/telnyx/router",
		Body:            base64.StdEncoding.EncodeToString([]byte(body)),
		IsBase64Encoded: true,
	})
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServeRejectsBadBase64(t *testing.T) {
	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run on an undecodable body")
	})

	resp, err := serve(context.Background(), h, events.APIGatewayV2HTTPRequest{
		RawPath:         "/webhooks/telnyx/router",
		Body:            "%%not-base64%%",
		IsBase64Encoded: true,
	})
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
