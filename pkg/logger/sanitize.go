package logger

import (
	"log/slog"
	"strings"
)

// SanitizedUsername masks a login name for logging (e.g. "j***" or
// "j***@e***.com"), preserving enough shape to correlate events.
func SanitizedUsername(username string) string {
	if username == "" {
		return "[empty]"
	}

	local := username
	domain := ""
	if i := strings.Index(username, "@"); i > 0 {
		local = username[:i]
		domain = username[i+1:]
	} else if i := strings.Index(username, `\`); i >= 0 {
		domain = username[:i]
		local = username[i+1:]
		return maskDomain(domain) + `\` + maskPart(local)
	}

	if domain == "" {
		return maskPart(local)
	}
	return maskPart(local) + "@" + maskDomain(domain)
}

func maskPart(s string) string {
	if len(s) <= 1 {
		return s
	}
	return string(s[0]) + strings.Repeat("*", len(s)-1)
}

func maskDomain(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) > 1 {
		for i := 0; i < len(parts)-1; i++ {
			parts[i] = maskPart(parts[i])
		}
		return strings.Join(parts, ".")
	}
	return maskPart(domain)
}

// RedactedAttr returns a redacted slog attribute for sensitive values.
// Production never logs the raw value.
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SanitizeQueryString reports whether a query string contains sensitive
// parameters and should be redacted wholesale from request logs.
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"password",
		"token",
		"secret",
		"api_key",
		"apikey",
		"auth",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
