package upstream

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// IsQuotaExhausted reports whether an upstream error response signals a
// rate/quota limit. Both families use 429; the Gemini wire also reports
// RESOURCE_EXHAUSTED in the body and the Claude wire rate_limit_error or
// overloaded_error.
func IsQuotaExhausted(status int, body []byte) bool {
	if status == http.StatusTooManyRequests {
		return true
	}

	if !gjson.ValidBytes(body) {
		return false
	}

	if gjson.GetBytes(body, "error.status").String() == "RESOURCE_EXHAUSTED" {
		return true
	}

	switch gjson.GetBytes(body, "error.type").String() {
	case "rate_limit_error", "overloaded_error":
		return true
	}

	return false
}

// IsIncompatibleHistory reports whether an upstream rejection is the
// "expected thinking but found text" class of validation error: a request
// whose historical thinking/tool_use signatures the provider refused. The
// compatibility filter should make this impossible; if it happens anyway the
// pipeline surfaces it verbatim so the filter gap can be diagnosed.
func IsIncompatibleHistory(status int, body []byte) bool {
	if status < 400 || status >= 500 {
		return false
	}

	if !gjson.ValidBytes(body) {
		return false
	}

	msg := strings.ToLower(gjson.GetBytes(body, "error.message").String())
	if msg == "" {
		return false
	}

	return strings.Contains(msg, "thinking") || strings.Contains(msg, "thought") || strings.Contains(msg, "signature")
}

// ErrorMessage extracts a human-readable message from an upstream error body.
func ErrorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
			return msg
		}
	}

	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 512 {
		trimmed = trimmed[:512]
	}

	return trimmed
}
