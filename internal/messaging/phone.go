package messaging

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`[0-9]+`)

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	digits := phoneDigitsRe.FindAllString(value, -1)
	return strings.Join(digits, "")
}

// CandidateFormats returns the variants a stored client phone might use for
// the given number: raw input, E.164, digits only, and the ten-digit US
// national form with and without the leading 1. Order matters; exact input
// is tried first.
func CandidateFormats(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	seen := make(map[string]struct{}, 6)
	var out []string
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	digits := sanitizePhone(value)
	add(value)
	add(NormalizeE164(value))
	add(digits)
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		add(digits[1:])
		add("+" + digits[1:])
	}
	if len(digits) == 10 {
		add("1" + digits)
		add("+1" + digits)
	}
	return out
}
