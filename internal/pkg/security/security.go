// Package security provides input validation for recognition queries and
// sanitization of untrusted values before they reach the logs.
package security

import (
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultLogLength bounds values written by SanitizeForLog.
const DefaultLogLength = 200

// Redacted replaces masked header values.
const Redacted = "[REDACTED]"

var logEscaper = strings.NewReplacer("\n", `\n`, "\r", `\r`, "\t", `\t`)

// SanitizeForLog makes s safe to log. Line breaks and tabs are escaped,
// other control characters are dropped, and the result is truncated to
// DefaultLogLength runes.
func SanitizeForLog(s string) string {
	return SanitizeForLogWithLength(s, DefaultLogLength)
}

// SanitizeForLogWithLength is SanitizeForLog with a custom rune limit.
// maxLen <= 0 disables truncation.
func SanitizeForLogWithLength(s string, maxLen int) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
	s = logEscaper.Replace(s)

	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		return string([]rune(s)[:maxLen]) + "..."
	}
	return s
}

// credentialHeaders always carry secrets.
var credentialHeaders = []string{"authorization", "proxy-authorization", "cookie", "set-cookie"}

// credentialHints mark header names that probably carry secrets.
var credentialHints = []string{"password", "secret", "token", "key", "credential", "auth"}

// MaskSensitiveHeaders returns a copy of headers with credential values
// replaced by Redacted.
func MaskSensitiveHeaders(headers http.Header) http.Header {
	masked := headers.Clone()
	for name := range masked {
		if isCredentialHeader(name) {
			masked[name] = []string{Redacted}
		}
	}
	return masked
}

func isCredentialHeader(name string) bool {
	name = strings.ToLower(name)
	for _, h := range credentialHeaders {
		if name == h {
			return true
		}
	}
	for _, hint := range credentialHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
