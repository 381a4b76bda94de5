package observability

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	defaultStringLimit = 256
	eventStringLimit   = 512
	masked             = "***"
)

// contactKeys are event field names that carry shopper contact details.
var contactKeys = map[string]bool{
	"firstName": true,
	"lastName":  true,
	"address":   true,
	"city":      true,
	"zip":       true,
}

// sanitizeString trims unwanted characters and limits string length to avoid log injection.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}

	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		cleaned = append(cleaned, r)
	}
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return string(cleaned)
}

// SanitizeRoute removes control characters and enforces length constraints on routes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod removes control characters in HTTP methods.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeSessionID bounds session identifiers written to logs.
func SanitizeSessionID(id string) string {
	if len(id) == 0 {
		return ""
	}
	return sanitizeString(id, 64)
}

// SanitizeEventValue prepares one domain event field for logging. Shopper contact details are
// masked and other strings lose control characters; non-string values pass through.
func SanitizeEventValue(key string, value any) any {
	text, ok := value.(string)
	if !ok {
		return value
	}
	switch {
	case key == "email":
		return MaskEmail(text)
	case contactKeys[key]:
		if text == "" {
			return ""
		}
		return masked
	default:
		return sanitizeString(text, eventStringLimit)
	}
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		if email == "" {
			return ""
		}
		return masked
	}
	_, size := utf8.DecodeRuneInString(email)
	return sanitizeString(email[:size]+masked+email[at:], 128)
}
