package llm

import (
	"errors"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{408, true},
		{413, false},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{418, true}, // unknown codes default to retryable
	}

	for _, tt := range tests {
		err := ErrorFromStatusCode(tt.status, "test error", "openai", "", nil)
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("status %d: expected retryable=%v, got %v", tt.status, tt.retryable, got)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"auth error", &AuthenticationError{}, false},
		{"access denied", &AccessDeniedError{}, false},
		{"not found", &NotFoundError{}, false},
		{"invalid request", &InvalidRequestError{}, false},
		{"context length", &ContextLengthError{}, false},
		{"quota exceeded", &QuotaExceededError{}, false},
		{"content filter", &ContentFilterError{}, false},
		{"config error", &ConfigurationError{}, false},
		{"invalid tool call", &InvalidToolCallError{}, false},
		{"abort", &AbortError{}, false},
		{"rate limit", &RateLimitError{ProviderError: ProviderError{Retryable: true}}, true},
		{"server error", &ServerError{ProviderError: ProviderError{Retryable: true}}, true},
		{"network error", &NetworkError{}, true},
		{"timeout error", &RequestTimeoutError{}, true},
		{"unknown error", errors.New("unknown"), true},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.retryable {
			t.Errorf("%s: expected retryable=%v, got %v", tt.name, tt.retryable, got)
		}
	}
}

func TestSDKErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &SDKError{Message: "wrapper", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Error() != "wrapper: root cause" {
		t.Errorf("unexpected error string: %q", err.Error())
	}

	bare := &SDKError{Message: "bare"}
	if bare.Error() != "bare" {
		t.Errorf("unexpected error string: %q", bare.Error())
	}
}

func TestProviderErrorString(t *testing.T) {
	err := &ProviderError{
		SDKError:   SDKError{Message: "rate limited"},
		Provider:   "openai",
		StatusCode: 429,
		Retryable:  true,
	}
	want := "[openai] rate limited (status=429, retryable=true)"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
