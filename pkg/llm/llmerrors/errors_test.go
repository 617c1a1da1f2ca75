package llmerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorTypeString(t *testing.T) {
	tests := []struct {
		et   ErrorType
		want string
	}{
		{ErrorTypeRateLimit, "rate_limit"},
		{ErrorTypeTransient, "transient"},
		{ErrorTypeEmptyResponse, "empty_response"},
		{ErrorTypeAuth, "auth"},
		{ErrorTypeBadPrompt, "bad_prompt"},
		{ErrorTypeUnknown, "unknown"},
		{ErrorType(99), "invalid"},
	}
	for _, tt := range tests {
		if got := tt.et.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.et, got, tt.want)
		}
	}
}

func TestIsAndTypeOf(t *testing.T) {
	base := NewErrorWithStatus(ErrorTypeRateLimit, 429, "quota exceeded")
	wrapped := fmt.Errorf("call failed: %w", base)

	if !Is(wrapped, ErrorTypeRateLimit) {
		t.Error("Is() did not match wrapped rate limit error")
	}
	if Is(wrapped, ErrorTypeAuth) {
		t.Error("Is() matched wrong type")
	}
	if TypeOf(wrapped) != ErrorTypeRateLimit {
		t.Errorf("TypeOf() = %v, want rate_limit", TypeOf(wrapped))
	}
	if TypeOf(errors.New("plain")) != ErrorTypeUnknown {
		t.Error("TypeOf(plain) should be unknown")
	}
}

func TestIsBackendFault(t *testing.T) {
	if IsBackendFault(NewError(ErrorTypeAuth, "bad key")) {
		t.Error("auth errors must not count toward breaker thresholds")
	}
	if IsBackendFault(NewError(ErrorTypeBadPrompt, "too long")) {
		t.Error("bad prompt errors must not count toward breaker thresholds")
	}
	if !IsBackendFault(NewError(ErrorTypeTransient, "503")) {
		t.Error("transient errors should count toward breaker thresholds")
	}
	// Unclassified network errors count as backend faults
	if !IsBackendFault(errors.New("connection reset by peer")) {
		t.Error("raw errors should count as backend faults")
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{400, ErrorTypeBadPrompt},
		{404, ErrorTypeBadPrompt},
		{500, ErrorTypeTransient},
		{503, ErrorTypeTransient},
		{200, ErrorTypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewErrorWithCause(ErrorTypeTransient, cause, "wrapped")
	if !errors.Is(err, cause) {
		t.Error("errors.Is() did not find wrapped cause")
	}
}
