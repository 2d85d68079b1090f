package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is the normalized webhook envelope. Telnyx delivers two shapes:
// an event wrapper {"data": {...}} and a bare record without the wrapper.
// Payload keeps the original inner JSON so downstream handlers receive the
// provider body verbatim.
type Event struct {
	ID         string
	EventType  string
	OccurredAt time.Time
	Payload    json.RawMessage
}

// ErrInvalidPayload indicates the body could not be decoded as a webhook.
var ErrInvalidPayload = errors.New("telephony: invalid webhook payload")

// ParseEvent decodes a raw webhook body into an Event.
func ParseEvent(body []byte) (Event, error) {
	var wrapper struct {
		Data struct {
			ID         string          `json:"id"`
			EventType  string          `json:"event_type"`
			OccurredAt time.Time       `json:"occurred_at"`
			Payload    json.RawMessage `json:"payload"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && (wrapper.Data.ID != "" || wrapper.Data.EventType != "") {
		return Event{
			ID:         wrapper.Data.ID,
			EventType:  wrapper.Data.EventType,
			OccurredAt: wrapper.Data.OccurredAt,
			Payload:    wrapper.Data.Payload,
		}, nil
	}

	var flat struct {
		ID         string          `json:"id"`
		EventType  string          `json:"event_type"`
		OccurredAt time.Time       `json:"occurred_at"`
		Payload    json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &flat); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	payload := flat.Payload
	if len(payload) == 0 {
		// Bare record format: the whole body is the payload.
		payload = body
	}
	return Event{
		ID:         flat.ID,
		EventType:  flat.EventType,
		OccurredAt: flat.OccurredAt,
		Payload:    payload,
	}, nil
}

// phoneField decodes the provider's from/to fields, which vary by API
// version: a bare string, an object with phone_number, or a list of such
// objects.
type phoneField struct {
	Number string
}

func (f *phoneField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Number = strings.TrimSpace(s)
		return nil
	}
	var obj struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.PhoneNumber != "" {
		f.Number = strings.TrimSpace(obj.PhoneNumber)
		return nil
	}
	var list []struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
		f.Number = strings.TrimSpace(list[0].PhoneNumber)
		return nil
	}
	// Tolerate shapes we do not recognize; the caller validates emptiness.
	f.Number = ""
	return nil
}

// SMSEvent is the decoded messaging variant of a webhook payload.
type SMSEvent struct {
	MessageID          string
	Direction          string
	Text               string
	Status             string
	From               string
	To                 string
	MessagingProfileID string
}

// VoiceEvent is the decoded call variant of a webhook payload.
type VoiceEvent struct {
	CallControlID string
	From          string
	To            string
}

type payloadProbe struct {
	ID                 string     `json:"id"`
	MessageID          string     `json:"message_id"`
	Direction          string     `json:"direction"`
	Text               string     `json:"text"`
	Type               string     `json:"type"`
	Status             string     `json:"status"`
	MessagingProfileID string     `json:"messaging_profile_id"`
	CallControlID      string     `json:"call_control_id"`
	From               phoneField `json:"from"`
	To                 phoneField `json:"to"`
	FromNumber         string     `json:"from_number"`
	ToNumber           string     `json:"to_number"`
}

func (p payloadProbe) fromNumber() string {
	if p.From.Number != "" {
		return p.From.Number
	}
	return strings.TrimSpace(p.FromNumber)
}

func (p payloadProbe) toNumber() string {
	if p.To.Number != "" {
		return p.To.Number
	}
	return strings.TrimSpace(p.ToNumber)
}

func (e Event) probe() (payloadProbe, error) {
	var p payloadProbe
	if len(e.Payload) == 0 {
		return p, ErrInvalidPayload
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

// DecodeSMS extracts the messaging variant from the payload.
func (e Event) DecodeSMS() (SMSEvent, error) {
	p, err := e.probe()
	if err != nil {
		return SMSEvent{}, err
	}
	msgID := p.ID
	if msgID == "" {
		msgID = p.MessageID
	}
	return SMSEvent{
		MessageID:          msgID,
		Direction:          p.Direction,
		Text:               p.Text,
		Status:             p.Status,
		From:               p.fromNumber(),
		To:                 p.toNumber(),
		MessagingProfileID: p.MessagingProfileID,
	}, nil
}

// DecodeVoice extracts the call variant from the payload.
func (e Event) DecodeVoice() (VoiceEvent, error) {
	p, err := e.probe()
	if err != nil {
		return VoiceEvent{}, err
	}
	return VoiceEvent{
		CallControlID: p.CallControlID,
		From:          p.fromNumber(),
		To:            p.toNumber(),
	}, nil
}
