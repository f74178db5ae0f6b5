package messaging

import "strings"

const whatsappPrefix = "whatsapp:"

// NormalizeE164 ensures the value begins with + and only contains digits
// afterward. A whatsapp: prefix is preserved.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	wa := strings.HasPrefix(value, whatsappPrefix)
	digits := sanitizePhone(strings.TrimPrefix(value, whatsappPrefix))
	if digits == "" {
		return ""
	}
	if wa {
		return whatsappPrefix + "+" + digits
	}
	return "+" + digits
}

// IsWhatsApp reports whether the address targets the WhatsApp channel.
func IsWhatsApp(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), whatsappPrefix)
}

// BareNumber strips the whatsapp: prefix, leaving the E.164 number.
func BareNumber(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), whatsappPrefix)
}

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
