package logger

import (
	"log/slog"
	"strings"
)

// MaskSubject masks a subject identifier for logging (e.g. "user-12345" -> "us******45").
// Email-shaped subjects keep their first letter and TLD.
func MaskSubject(subject string) string {
	if strings.Contains(subject, "@") {
		return maskEmail(subject)
	}

	runes := []rune(subject)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}

// maskEmail masks an email address for logging (e.g., "u***@e***.com")
func maskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	username := parts[0]
	domain := parts[1]

	// Mask username: keep first char, mask rest
	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	// Mask domain: keep TLD, mask the rest
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// SubjectAttr returns a masked slog attribute for a subject
func SubjectAttr(subject string) slog.Attr {
	return slog.String("subject", MaskSubject(subject))
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"code", "token", "secret", "password", "subject", "auth",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
