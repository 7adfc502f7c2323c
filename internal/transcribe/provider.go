package transcribe

import (
	"context"
	"fmt"
)

// Provider sends one canonical WAV utterance to a speech-to-text backend.
type Provider interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

type ProviderConfig struct {
	Name     string
	APIKey   string
	Model    string
	BaseURL  string
	Language string
}

func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "deepgram":
		return NewDeepgramProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q: supported providers are openai, deepgram", cfg.Name)
	}
}
