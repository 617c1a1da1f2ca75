package llmerrors

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var statusCodeRe = regexp.MustCompile(`\b([4-5]\d{2})\b`)

// extractStatusCode pulls an HTTP status code out of an SDK error string.
// Provider SDKs embed the status in the message rather than exposing it.
func extractStatusCode(errStr string) int {
	match := statusCodeRe.FindString(errStr)
	if match == "" {
		return 0
	}
	code, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return code
}

// Classify maps a provider SDK error to a structured LLM error. Already
// classified errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request canceled")
	}

	errStr := err.Error()
	if statusCode := extractStatusCode(errStr); statusCode != 0 {
		switch et := ClassifyHTTPStatus(statusCode); et {
		case ErrorTypeAuth:
			return NewErrorWithStatus(et, statusCode, "authentication failed - check API key")
		case ErrorTypeRateLimit:
			return NewErrorWithStatus(et, statusCode, "rate limit exceeded")
		case ErrorTypeBadPrompt:
			return NewErrorWithStatus(et, statusCode, "bad request - check prompt format and parameters")
		case ErrorTypeTransient:
			return NewErrorWithStatus(et, statusCode, "server error")
		}
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "connection"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "temporary"),
		strings.Contains(errStr, "EOF"),
		strings.Contains(lower, "reset"):
		return NewErrorWithCause(ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(lower, "rate"), strings.Contains(lower, "quota"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "api key"):
		return NewErrorWithCause(ErrorTypeAuth, err, "authentication error")
	}

	return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified backend error")
}
