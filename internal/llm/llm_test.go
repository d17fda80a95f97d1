package llm

import (
	"errors"
	"testing"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limit", err: errors.New("429 RESOURCE_EXHAUSTED: rate limit exceeded"), want: true},
		{name: "server error", err: errors.New("503 Service Unavailable"), want: true},
		{name: "connection reset", err: errors.New("read tcp: connection reset by peer"), want: true},
		{name: "timeout", err: errors.New("upstream timeout while waiting for model"), want: true},
		{name: "auth failure", err: errors.New("401 unauthorized: invalid api key"), want: false},
		{name: "bad request", err: errors.New("400 invalid argument"), want: false},
		{name: "not found", err: errors.New("model not found"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "no fence", input: `{"a":1}`, want: `{"a":1}`},
		{name: "plain fence", input: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "json fence", input: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "whitespace around", input: "  ```json\n{\"a\":1}\n```  ", want: `{"a":1}`},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFences(tt.input); got != tt.want {
				t.Errorf("StripCodeFences(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewRequiresGenkit(t *testing.T) {
	if _, err := New(Config{ModelName: "googleai/gemini-2.5-flash"}); err == nil {
		t.Error("New() accepted a nil genkit instance")
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 || cfg.InitialInterval <= 0 || cfg.MaxInterval < cfg.InitialInterval {
		t.Errorf("implausible defaults: %+v", cfg)
	}
}
