package telephony

import "strings"

// Kind is the routing class of a webhook event.
type Kind int

const (
	KindVoice Kind = iota
	KindSMS
)

func (k Kind) String() string {
	if k == KindSMS {
		return "sms"
	}
	return "voice"
}

// Classify decides whether an event belongs to the messaging or the voice
// flow. Provider schemas nest fields differently across API versions, so
// the checks are deliberately redundant. A call_control_id is authoritative
// for voice regardless of any text-like fields.
func Classify(e Event) Kind {
	if strings.HasPrefix(e.EventType, "message.") {
		return KindSMS
	}
	p, err := e.probe()
	if err != nil {
		return KindVoice
	}
	if p.CallControlID != "" {
		return KindVoice
	}
	if p.Text != "" || strings.EqualFold(p.Type, "SMS") || p.MessagingProfileID != "" {
		return KindSMS
	}
	return KindVoice
}
