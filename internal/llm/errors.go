package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure.
type ErrorKind int

const (
	// KindAuth means the provider rejected the credential. Non-retryable.
	KindAuth ErrorKind = iota
	// KindRateLimited means the provider throttled the call. Retryable.
	KindRateLimited
	// KindTimeout means the per-call timeout elapsed. Retryable.
	KindTimeout
	// KindInvalidModel means the model identifier is unknown. Non-retryable.
	KindInvalidModel
	// KindTransport means the request never reached the provider. Retryable.
	KindTransport
	// KindUpstream means the provider returned a server-side error. Retryable.
	KindUpstream
)

// String returns the snake_case name used in reports and logs.
func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindInvalidModel:
		return "invalid_model"
	case KindTransport:
		return "transport"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind may succeed on retry.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindTransport, KindUpstream:
		return true
	default:
		return false
	}
}

// ProviderError is a classified failure from a concrete provider.
type ProviderError struct {
	// Kind is the failure classification.
	Kind ErrorKind
	// Provider names the provider that failed.
	Provider string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on retry.
func (e *ProviderError) Retryable() bool {
	return e.Kind.Retryable()
}

// classifyContextErr maps context expiry onto the error taxonomy: a
// deadline is a per-call timeout, an explicit cancel stays as-is so the
// orchestrator can tell cancellation apart from failure.
func classifyContextErr(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Kind: KindTimeout, Provider: provider, Err: err}
	}
	return err
}
