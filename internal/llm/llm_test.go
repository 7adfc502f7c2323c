package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseModel(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantProvider string
		wantModel    string
		wantErr      string
	}{
		{name: "valid", input: "openai/gpt-4o-mini", wantProvider: "openai", wantModel: "gpt-4o-mini"},
		{name: "nested model path", input: "openai/ft:gpt-4o-mini/labels", wantProvider: "openai", wantModel: "ft:gpt-4o-mini/labels"},
		{name: "missing slash", input: "openai", wantErr: "invalid model format"},
		{name: "empty provider", input: "/gpt-4o-mini", wantErr: "invalid model format"},
		{name: "empty model", input: "openai/", wantErr: "invalid model format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, modelName, err := ParseModel(tt.input)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %q", tt.wantErr, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseModel returned error: %v", err)
			}
			if provider != tt.wantProvider {
				t.Fatalf("expected provider %q, got %q", tt.wantProvider, provider)
			}
			if modelName != tt.wantModel {
				t.Fatalf("expected model %q, got %q", tt.wantModel, modelName)
			}
		})
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	client, err := NewClient("unknown", "key", "some-model")
	if err == nil {
		t.Fatalf("expected error for unknown provider, got nil")
	}
	if client != nil {
		t.Fatalf("expected nil client, got %#v", client)
	}
	if !strings.Contains(err.Error(), "unknown LLM provider") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewClientRequiresKeyWithoutBaseURL(t *testing.T) {
	for _, provider := range []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini} {
		if _, err := NewClient(provider, "", "m"); !errors.Is(err, ErrMissingAPIKey) {
			t.Fatalf("%s: expected ErrMissingAPIKey, got %v", provider, err)
		}
	}
	if _, err := NewClient(ProviderOpenAI, "", "m", WithBaseURL("http://localhost:11434/v1")); err != nil {
		t.Fatalf("expected self-hosted endpoint to need no key, got %v", err)
	}
}

func TestRequestLimit(t *testing.T) {
	o := clientOptions{maxTokens: defaultMaxTokens}
	WithMaxTokens(-1)(&o)
	if got := o.limit(Request{}); got != defaultMaxTokens {
		t.Fatalf("expected default limit, got %d", got)
	}
	WithMaxTokens(10)(&o)
	if got := o.limit(Request{}); got != 10 {
		t.Fatalf("expected client limit 10, got %d", got)
	}
	if got := o.limit(Request{MaxTokens: 3}); got != 3 {
		t.Fatalf("expected request override 3, got %d", got)
	}
}

func TestEmptyPromptRejectedBeforeCall(t *testing.T) {
	client := newOpenAIClient("key", "gpt-4o-mini", clientOptions{baseURL: "http://127.0.0.1:0"})
	if _, err := client.Complete(context.Background(), Request{System: "label it", Prompt: "  "}); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}
