// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "ES"

// FromJID strips the WhatsApp server suffix and device part from a JID
// ("34600111222:12@s.whatsapp.net" becomes "34600111222").
func FromJID(jid string) string {
	trimmed := strings.TrimSpace(jid)
	if at := strings.Index(trimmed, "@"); at >= 0 {
		trimmed = trimmed[:at]
	}
	if colon := strings.Index(trimmed, ":"); colon >= 0 {
		trimmed = trimmed[:colon]
	}
	return strings.TrimPrefix(trimmed, "+")
}

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	return NormalizeE164In(input, defaultRegion)
}

// NormalizeE164In is NormalizeE164 with an explicit default region.
func NormalizeE164In(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = defaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// Digits returns the number the way the transport and the clients table store
// it: E.164 without the leading plus. JIDs are accepted.
func Digits(input, region string) string {
	raw := FromJID(input)
	if raw == "" {
		return ""
	}
	// JIDs always carry the country code; bare digit strings that long are
	// parsed as international numbers.
	if isDigits(raw) && len(raw) >= 11 {
		raw = "+" + raw
	}
	return strings.TrimPrefix(NormalizeE164In(raw, region), "+")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
