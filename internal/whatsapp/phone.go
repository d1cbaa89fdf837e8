package whatsapp

import (
	"errors"
	"strings"
)

var ErrNotConnected = errors.New("whatsapp client not connected")

var phoneSeparators = strings.NewReplacer("+", "", "-", "", " ", "", "(", "", ")", "", ".", "")

// IsPhoneNumber reports whether s looks like an international phone number:
// 7 to 15 digits once common separators are removed.
func IsPhoneNumber(s string) bool {
	cleaned := phoneSeparators.Replace(strings.TrimSpace(s))
	if len(cleaned) < 7 || len(cleaned) > 15 {
		return false
	}

	for _, char := range cleaned {
		if char < '0' || char > '9' {
			return false
		}
	}

	return true
}

// NormalizePhone strips everything but digits. A leading "00" international
// prefix is dropped. It returns "" when the result is not a valid number.
func NormalizePhone(phone string) string {
	if !IsPhoneNumber(phone) {
		return ""
	}

	var b strings.Builder
	for _, char := range phone {
		if char >= '0' && char <= '9' {
			b.WriteRune(char)
		}
	}

	cleaned := strings.TrimPrefix(b.String(), "00")
	if len(cleaned) < 7 {
		return ""
	}
	return cleaned
}

func FormatPhoneToJID(phone string) string {
	return NormalizePhone(phone) + "@s.whatsapp.net"
}
