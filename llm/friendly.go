package llm

import (
	"errors"
	"strings"
)

const (
	genericFailureMessage = "An unexpected error occurred"
	networkFailureMessage = "Network error. Please check your connection and try again."
	timeoutFailureMessage = "The request timed out. Please try again."
	maxFriendlyLength     = 200
)

var networkMarkers = []string{
	"network", "fetch failed", "connection refused", "connection reset",
	"no such host", "econnrefused", "enotfound", "broken pipe",
}

var timeoutMarkers = []string{"timeout", "timed out", "deadline exceeded"}

var stackTraceMarkers = []string{"traceback (most recent call last)", "goroutine ", "panic:", ".go:", " at java.", "exception in thread"}

// FriendlyMessage turns any failure into one short sentence for end users.
// Typed errors keep their own message when it passes Displayable; raw provider
// payloads and stack traces never pass through.
func FriendlyMessage(v any) string {
	err, ok := v.(error)
	if !ok || err == nil {
		return genericFailureMessage
	}

	var typed *Error
	if errors.As(err, &typed) {
		if Displayable(typed.Message) {
			return typed.Message
		}
		return genericFailureMessage
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, m := range timeoutMarkers {
		if strings.Contains(lower, m) {
			return timeoutFailureMessage
		}
	}
	for _, m := range networkMarkers {
		if strings.Contains(lower, m) {
			return networkFailureMessage
		}
	}
	if !Displayable(msg) {
		return genericFailureMessage
	}
	return msg
}

// Displayable reports whether msg is safe to show an end user as-is:
// one short line with no JSON punctuation and no stack-trace markers.
func Displayable(msg string) bool {
	if msg == "" || len(msg) > maxFriendlyLength {
		return false
	}
	if strings.ContainsAny(msg, "{}[]\n\r") {
		return false
	}
	lower := strings.ToLower(msg)
	for _, m := range stackTraceMarkers {
		if strings.Contains(lower, m) {
			return false
		}
	}
	return true
}
