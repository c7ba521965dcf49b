package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindAuth, false},
		{KindInvalidModel, false},
		{KindRateLimited, true},
		{KindTimeout, true},
		{KindTransport, true},
		{KindUpstream, true},
	}

	for _, tt := range tests {
		if got := tt.kind.Retryable(); got != tt.want {
			t.Errorf("%s.Retryable() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindAuth, "auth"},
		{KindRateLimited, "rate_limited"},
		{KindTimeout, "timeout"},
		{KindInvalidModel, "invalid_model"},
		{KindTransport, "transport"},
		{KindUpstream, "upstream"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := &ProviderError{Kind: KindTransport, Provider: "openai", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}

	var pe *ProviderError
	if !errors.As(error(err), &pe) {
		t.Fatal("expected errors.As to match *ProviderError")
	}
	if !pe.Retryable() {
		t.Error("transport errors should be retryable")
	}
}

func TestClassifyContextErr(t *testing.T) {
	err := classifyContextErr("openai", context.DeadlineExceeded)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError for deadline, got %v", err)
	}
	if pe.Kind != KindTimeout {
		t.Errorf("kind = %s, want timeout", pe.Kind)
	}

	// Explicit cancellation passes through untouched.
	if got := classifyContextErr("openai", context.Canceled); got != context.Canceled {
		t.Errorf("expected context.Canceled unchanged, got %v", got)
	}
}
