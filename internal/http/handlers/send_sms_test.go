package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/jordanharvey/fieldline/internal/messaging"
	"github.com/jordanharvey/fieldline/internal/messaging/telnyxclient"
	"github.com/jordanharvey/fieldline/internal/tenant"
	"github.com/jordanharvey/fieldline/pkg/logging"
)

func newSendHandler(t *testing.T, sender *stubSender, resolver *stubResolver) (pgxmock.PgxPoolIface, *SendSMSHandler) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	h := NewSendSMSHandler(SendSMSConfig{
		Store:    messaging.NewStore(mock),
		Resolver: resolver,
		Sender:   sender,
		Logger:   logging.Default(),
	})
	return mock, h
}

func postSend(t *testing.T, h *SendSMSHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/sms/send", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

const sendBody = `{"from":"+15559876543","to":"+15551234567","text":"On my way"}`

func TestSendSMSSuccessRecordsOutbound(t *testing.T) {
	tenantID := uuid.New()
	sender := &stubSender{resp: &telnyxclient.MessageResponse{ID: "prov-9"}}
	mock, h := newSendHandler(t, sender, &stubResolver{own: tenant.Ownership{TenantID: tenantID}})

	clientID := uuid.New()
	convID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, tenant_id, name, phone").
		WithArgs(tenantID, pgxmock.AnyArg(), "15551234567").
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "name", "phone"}).
			AddRow(clientID, tenantID, "Dana Fox", "+15551234567"))
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), tenantID, clientID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "last_message_at"}).
			AddRow(convID, messaging.ConversationActive, nowStamp()))
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(pgxmock.AnyArg(), convID, messaging.DirectionOutbound, "On my way", "+15559876543", "+15551234567", "prov-9", "sent").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), nowStamp()))
	mock.ExpectExec("UPDATE conversations SET last_message_at").
		WithArgs(convID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	rec := postSend(t, h, sendBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["provider_message_id"] != "prov-9" || resp["conversation_id"] != convID.String() {
		t.Fatalf("unexpected response: %v", resp)
	}
	if sender.lastReq.To != "+15551234567" {
		t.Fatalf("unexpected send request: %+v", sender.lastReq)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSendSMSUnknownSendingNumber(t *testing.T) {
	_, h := newSendHandler(t, &stubSender{}, &stubResolver{err: tenant.ErrNumberNotFound})
	rec := postSend(t, h, sendBody)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSendSMSValidation(t *testing.T) {
	_, h := newSendHandler(t, &stubSender{}, &stubResolver{})
	for name, body := range map[string]string{
		"bad json":     `{`,
		"missing to":   `{"from":"+15559876543","text":"hi"}`,
		"missing text": `{"from":"+15559876543","to":"+15551234567"}`,
	} {
		rec := postSend(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestSendSMSProviderErrorCategories(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{telnyxclient.ErrAuth, http.StatusBadGateway, "provider authentication failed"},
		{telnyxclient.ErrInvalidNumber, http.StatusBadRequest, "invalid recipient number or message"},
		{telnyxclient.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider temporarily unavailable, retry later"},
	}
	for _, tc := range cases {
		_, h := newSendHandler(t, &stubSender{err: tc.err}, &stubResolver{own: tenant.Ownership{TenantID: uuid.New()}})
		rec := postSend(t, h, sendBody)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
		var resp map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp["success"] != false || resp["error"] != tc.msg {
			t.Fatalf("%v: unexpected body %v", tc.err, resp)
		}
	}
}

func TestSendSMSRecordFailureStillReportsSend(t *testing.T) {
	tenantID := uuid.New()
	sender := &stubSender{resp: &telnyxclient.MessageResponse{ID: "prov-9"}}
	mock, h := newSendHandler(t, sender, &stubResolver{own: tenant.Ownership{TenantID: tenantID}})

	mock.ExpectBegin().WillReturnError(errSentinel)

	rec := postSend(t, h, sendBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("send succeeded; expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["recorded"] != false || resp["provider_message_id"] != "prov-9" {
		t.Fatalf("unexpected response: %v", resp)
	}
}
