package llm

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownProvider indicates no provider claims the given model name.
var ErrUnknownProvider = errors.New("no provider for model")

// FactoryConfig carries the credentials and transport options for every
// provider a run may touch.
type FactoryConfig struct {
	Anthropic AnthropicConfig
	OpenAI    OpenAIConfig
}

// Factory hands out providers keyed by model name. Vendors are selected by
// model-name prefix; providers are constructed lazily and cached, so a run
// that only uses Claude models never needs an OpenAI key.
type Factory struct {
	cfg   FactoryConfig
	mu    sync.Mutex
	cache map[string]Provider
}

// NewFactory creates a provider factory with the given credentials.
func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{cfg: cfg, cache: make(map[string]Provider)}
}

// ForModel returns the provider responsible for the given model name.
func (f *Factory) ForModel(model string) (Provider, error) {
	name := providerNameForModel(model)
	if name == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, model)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.cache[name]; ok {
		return p, nil
	}

	var (
		p   Provider
		err error
	)
	switch name {
	case "anthropic":
		p, err = NewAnthropic(f.cfg.Anthropic)
	case "openai":
		p, err = NewOpenAI(f.cfg.OpenAI)
	}
	if err != nil {
		return nil, fmt.Errorf("configure %s provider: %w", name, err)
	}

	f.cache[name] = p
	return p, nil
}

// providerNameForModel routes a model name to its vendor by prefix.
func providerNameForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "claude-"), strings.HasPrefix(model, "us.anthropic."):
		return "anthropic"
	case strings.HasPrefix(model, "gpt-"):
		return "openai"
	default:
		return ""
	}
}
