// Package llm provides the uniform gateway over concrete LLM providers.
// The orchestration layers depend only on the Provider interface; vendor
// bindings live behind it and are selected by model name.
package llm

import "context"

// Request is one prompt to send to a provider.
type Request struct {
	// System is the persona preamble, sent as the system prompt.
	System string
	// Prompt is the rendered user prompt.
	Prompt string
	// Model is the model identifier; must pass ValidateModel.
	Model string
	// MaxTokens bounds the response length. Zero uses the provider default.
	MaxTokens int64
}

// Result is a successful provider response.
type Result struct {
	// Text is the generated completion.
	Text string
	// Provider names the provider that produced it.
	Provider string
	// Model is the model that produced it.
	Model string
	// InputTokens is the prompt token count, when reported.
	InputTokens int64
	// OutputTokens is the completion token count, when reported.
	OutputTokens int64
}

// Provider is the capability every concrete LLM vendor must satisfy.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic").
	Name() string
	// ValidateCredentials is a cheap local check that a credential is
	// configured. It does not guarantee the remote provider accepts it.
	ValidateCredentials() bool
	// ValidateModel reports whether the model identifier is in this
	// provider's supported set.
	ValidateModel(model string) bool
	// Send submits one prompt and returns the result or a *ProviderError.
	// The context carries the per-call timeout and run cancellation.
	Send(ctx context.Context, req Request) (*Result, error)
}
