// Package logging provides helpers for keeping secrets and raw identifiers
// out of log lines and user-facing error messages.
package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength caps how much of a SQL statement is logged.
	MaxQueryLogLength = 120
	// RedactedText replaces sensitive fragments.
	RedactedText = "[REDACTED]"
)

var (
	// password=..., pwd=..., pass=... in DSN-style strings
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// api_key=..., apikey=... style fragments
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey)=[A-Za-z0-9-_]{8,}`)

	// user:pass@host credentials embedded in URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)

	// Double-quoted SQL identifiers leaked by warehouse error messages,
	// e.g. column "users.email" does not exist.
	quotedIdentifierPattern = regexp.MustCompile(`"[A-Za-z0-9_.]+"`)
)

// SanitizeConnectionString removes credentials from a DSN before logging.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError scrubs secrets from an error message before logging.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeWarehouseError scrubs a warehouse error message for user display:
// secrets are redacted and quoted schema identifiers are masked so column and
// table names never leak into responses.
func SanitizeWarehouseError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := SanitizeError(err)
	return quotedIdentifierPattern.ReplaceAllString(sanitized, `"..."`)
}

// SanitizeQuery truncates a SQL statement for logging.
func SanitizeQuery(query string) string {
	if len(query) > MaxQueryLogLength {
		return query[:MaxQueryLogLength] + "..."
	}
	return query
}
