package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openaiModels is the supported model set for the OpenAI provider.
var openaiModels = map[string]bool{
	"gpt-4":         true,
	"gpt-4-turbo":   true,
	"gpt-4o":        true,
	"gpt-4o-mini":   true,
	"gpt-3.5-turbo": true,
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. If empty, OPENAI_API_KEY is used.
	APIKey string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	// HTTPClient overrides the transport. Nil uses a default client.
	HTTPClient *http.Client
}

// OpenAI is the Provider implementation for the OpenAI chat completions
// API over plain HTTPS.
type OpenAI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenAI creates an OpenAI provider from the given config.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	return &OpenAI{apiKey: apiKey, baseURL: baseURL, client: client}, nil
}

// Name returns "openai".
func (p *OpenAI) Name() string { return "openai" }

// ValidateCredentials checks that an API key is configured.
func (p *OpenAI) ValidateCredentials() bool {
	return p.apiKey != ""
}

// ValidateModel reports whether the model is in the supported set.
func (p *OpenAI) ValidateModel(model string) bool {
	return openaiModels[model]
}

type openaiChatRequest struct {
	Model     string          `json:"model"`
	Messages  []openaiMessage `json:"messages"`
	MaxTokens int64           `json:"max_tokens,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Send submits one prompt to the chat completions endpoint.
func (p *OpenAI) Send(ctx context.Context, req Request) (*Result, error) {
	if !p.ValidateModel(req.Model) {
		return nil, &ProviderError{
			Kind:     KindInvalidModel,
			Provider: p.Name(),
			Err:      fmt.Errorf("model %q is not supported", req.Model),
		}
	}

	var messages []openaiMessage
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(openaiChatRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := classifyContextErr(p.Name(), err); ctxErr != err {
			return nil, ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, &ProviderError{Kind: KindTransport, Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Kind: KindTransport, Provider: p.Name(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyStatus(resp.StatusCode, data)
	}

	var parsed openaiChatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &ProviderError{
			Kind:     KindUpstream,
			Provider: p.Name(),
			Err:      fmt.Errorf("decode response: %w", err),
		}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ProviderError{
			Kind:     KindUpstream,
			Provider: p.Name(),
			Err:      fmt.Errorf("response contained no choices"),
		}
	}

	return &Result{
		Text:         parsed.Choices[0].Message.Content,
		Provider:     p.Name(),
		Model:        req.Model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// classifyStatus maps an HTTP error status onto the gateway taxonomy.
func (p *OpenAI) classifyStatus(status int, body []byte) error {
	message := string(body)
	var parsed openaiChatResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		message = parsed.Error.Message
	}

	kind := KindUpstream
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusNotFound:
		kind = KindInvalidModel
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status >= 500:
		kind = KindUpstream
	}

	return &ProviderError{
		Kind:     kind,
		Provider: p.Name(),
		Err:      fmt.Errorf("status %d: %s", status, message),
	}
}
