// File: internal/incident/redact/redact.go
// Brief: Event message redaction ahead of incident detection.

// Package redact scrubs sensitive text from event messages before
// detection runs over them, at three increasing levels of aggressiveness.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/alleyfoo/puhemies-fleet/internal/config"
)

var (
	passwordRe = regexp.MustCompile(`(?i)password=\S+`)
	secretRe   = regexp.MustCompile(`(?i)secret\s*[:=]\s*\S+`)
	tokenRe    = regexp.MustCompile(`(?i)token=\S+`)
	base64Re   = regexp.MustCompile(`[A-Za-z0-9+/=]{24,}`)
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	winPathRe  = regexp.MustCompile(`[A-Za-z]:[\\/][^\s]+`)
	uncPathRe  = regexp.MustCompile(`\\\\[A-Za-z0-9_.-]+\\[^\s]+`)
	ipv4Re     = regexp.MustCompile(`\b(\d{1,3}\.\d{1,3}\.\d{1,3})\.\d{1,3}\b`)
	timeRe     = regexp.MustCompile(`\d{2}:\d{2}:\d{2}`)
)

// Message redacts one event message according to mode. off returns the
// message unchanged; balanced masks secrets, emails, paths, and the last
// IPv4 octet; strict additionally masks HH:MM:SS timestamps.
func Message(mode config.RedactionMode, message string) string {
	if message == "" || mode == config.RedactionOff {
		return message
	}
	redacted := message
	redacted = passwordRe.ReplaceAllString(redacted, "[REDACTED]")
	redacted = secretRe.ReplaceAllString(redacted, "[REDACTED]")
	redacted = tokenRe.ReplaceAllString(redacted, "[REDACTED]")
	redacted = base64Re.ReplaceAllString(redacted, "[REDACTED]")
	redacted = emailRe.ReplaceAllString(redacted, "[REDACTED_EMAIL]")
	redacted = winPathRe.ReplaceAllString(redacted, "[REDACTED_PATH]")
	redacted = uncPathRe.ReplaceAllString(redacted, "[REDACTED_PATH]")
	redacted = ipv4Re.ReplaceAllString(redacted, "$1.0/24")
	if mode == config.RedactionStrict {
		redacted = timeRe.ReplaceAllString(redacted, "HH:MM:SS")
	}
	return redacted
}

// HashUser salts and hashes a user identifier under strict mode, returning
// the original value unchanged for off/balanced modes or an empty input.
func HashUser(mode config.RedactionMode, salt, userID string) string {
	if userID == "" || mode != config.RedactionStrict {
		return userID
	}
	sum := sha256.Sum256([]byte(salt + userID))
	return "user-" + hex.EncodeToString(sum[:])[:12]
}

// NormalizeMessageTemplate lowercases, collapses whitespace, and replaces
// every digit run with "<n>", producing the template half of a signature.
func NormalizeMessageTemplate(message string) string {
	lower := strings.ToLower(strings.TrimSpace(message))
	lower = collapseWhitespaceRe.ReplaceAllString(lower, " ")
	return digitRunRe.ReplaceAllString(lower, "<n>")
}

var (
	collapseWhitespaceRe = regexp.MustCompile(`\s+`)
	digitRunRe           = regexp.MustCompile(`\d+`)
)
