// Package llm sends single-turn prompts to a hosted chat model and returns
// the trimmed reply. No conversation state is kept between calls.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResponse is returned when a provider answers without any text.
	ErrEmptyResponse = errors.New("empty response")
	ErrEmptyPrompt   = errors.New("empty prompt")
	ErrMissingAPIKey = errors.New("missing API key")
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// defaultMaxTokens fits a one-word label.
const defaultMaxTokens = 16

// Request is one prompt with an optional system instruction.
type Request struct {
	System string
	Prompt string
	// MaxTokens overrides the client limit when positive.
	MaxTokens int
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL   string
	maxTokens int
}

func (o clientOptions) limit(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return o.maxTokens
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithMaxTokens sets the default reply limit. Non-positive values are ignored.
func WithMaxTokens(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

func ParseModel(model string) (provider, modelName string, err error) {
	provider, modelName, ok := strings.Cut(model, "/")
	if !ok || provider == "" || modelName == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return provider, modelName, nil
}

// NewClient builds a client for provider. A key is required unless a base
// URL points at a self-hosted endpoint.
func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := clientOptions{maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(&o)
	}

	switch provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
	if apiKey == "" && o.baseURL == "" {
		return nil, fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
	}

	switch provider {
	case ProviderOpenAI:
		return newOpenAIClient(apiKey, model, o), nil
	case ProviderAnthropic:
		return newAnthropicClient(apiKey, model, o), nil
	default:
		return newGeminiClient(apiKey, model, o)
	}
}

func checkPrompt(req Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}
