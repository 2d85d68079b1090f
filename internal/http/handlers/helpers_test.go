package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/jordanharvey/fieldline/internal/messaging/telnyxclient"
	"github.com/jordanharvey/fieldline/internal/routing"
	"github.com/jordanharvey/fieldline/internal/tenant"
)

var errSentinel = errors.New("stub failure")

func nowStamp() time.Time {
	return time.Now().UTC()
}

type stubResolver struct {
	own       tenant.Ownership
	err       error
	decisions []string
	decideErr error
}

func (s *stubResolver) Resolve(_ context.Context, _ string) (tenant.Ownership, error) {
	if s.err != nil {
		return tenant.Ownership{}, s.err
	}
	return s.own, nil
}

func (s *stubResolver) RecordRoutingDecision(_ context.Context, _, decision string) error {
	s.decisions = append(s.decisions, decision)
	return s.decideErr
}

type stubAudit struct {
	entries []routing.LogEntry
	err     error
}

func (s *stubAudit) Append(_ context.Context, entry routing.LogEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

type stubForwarder struct {
	lastURL  string
	lastBody []byte
	calls    int
	res      ForwardResult
	err      error
}

func (s *stubForwarder) Forward(_ context.Context, url string, body []byte) (ForwardResult, error) {
	s.calls++
	s.lastURL = url
	s.lastBody = body
	if s.err != nil {
		return ForwardResult{}, s.err
	}
	return s.res, nil
}

type stubProcessedTracker struct {
	seen   map[string]bool
	marked []string
}

func (s *stubProcessedTracker) AlreadyProcessed(_ context.Context, provider, eventID string) (bool, error) {
	return s.seen[provider+":"+eventID], nil
}

func (s *stubProcessedTracker) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	key := provider + ":" + eventID
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.marked = append(s.marked, key)
	return true, nil
}

type stubVerifier struct {
	err   error
	calls int
}

func (s *stubVerifier) Verify(_ []byte, _, _ string) error {
	s.calls++
	return s.err
}

type stubSender struct {
	lastReq telnyxclient.SendMessageRequest
	resp    *telnyxclient.MessageResponse
	err     error
}

func (s *stubSender) SendMessage(_ context.Context, req telnyxclient.SendMessageRequest) (*telnyxclient.MessageResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}
