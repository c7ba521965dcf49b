package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOpenAI(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	return p
}

func TestOpenAISendSuccess(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "hello world"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3}
		}`))
	})

	res, err := p.Send(context.Background(), Request{
		Prompt: "say hello",
		Model:  "gpt-4-turbo",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("Text = %q, want %q", res.Text, "hello world")
	}
	if res.Provider != "openai" || res.Model != "gpt-4-turbo" {
		t.Errorf("unexpected provenance: %+v", res)
	}
	if res.InputTokens != 12 || res.OutputTokens != 3 {
		t.Errorf("unexpected usage: %+v", res)
	}
}

func TestOpenAISendErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, KindAuth},
		{"forbidden", http.StatusForbidden, KindAuth},
		{"not found", http.StatusNotFound, KindInvalidModel},
		{"rate limited", http.StatusTooManyRequests, KindRateLimited},
		{"server error", http.StatusInternalServerError, KindUpstream},
		{"bad gateway", http.StatusBadGateway, KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": {"message": "nope", "type": "test"}}`))
			})

			_, err := p.Send(context.Background(), Request{Prompt: "x", Model: "gpt-4"})
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ProviderError, got %v", err)
			}
			if pe.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", pe.Kind, tt.wantKind)
			}
		})
	}
}

func TestOpenAISendInvalidModel(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server for an unsupported model")
	})

	_, err := p.Send(context.Background(), Request{Prompt: "x", Model: "davinci-ancient"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if pe.Kind != KindInvalidModel {
		t.Errorf("kind = %s, want invalid_model", pe.Kind)
	}
	if pe.Retryable() {
		t.Error("invalid model must not be retryable")
	}
}

func TestOpenAISendTimeout(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Send(ctx, Request{Prompt: "x", Model: "gpt-4"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if pe.Kind != KindTimeout {
		t.Errorf("kind = %s, want timeout", pe.Kind)
	}
}

func TestOpenAISendNoChoices(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})

	_, err := p.Send(context.Background(), Request{Prompt: "x", Model: "gpt-4"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if pe.Kind != KindUpstream {
		t.Errorf("kind = %s, want upstream", pe.Kind)
	}
}

func TestOpenAIValidate(t *testing.T) {
	p := newTestOpenAI(t, nil)

	if !p.ValidateCredentials() {
		t.Error("expected credentials to validate with a key set")
	}
	if !p.ValidateModel("gpt-4-turbo") {
		t.Error("expected gpt-4-turbo to be supported")
	}
	if p.ValidateModel("claude-3-7-sonnet-20250219") {
		t.Error("claude models are not OpenAI models")
	}
}
