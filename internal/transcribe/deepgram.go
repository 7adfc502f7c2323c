package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramProvider uses Deepgram's pre-recorded endpoint, one request per
// utterance.
type DeepgramProvider struct {
	// fromStream returns the JSON-encoded pre-recorded response.
	fromStream func(ctx context.Context, src io.Reader) ([]byte, error)
}

type prerecordedResult struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func NewDeepgramProvider(cfg ProviderConfig) *DeepgramProvider {
	model := cfg.Model
	if model == "" {
		model = "nova-2"
	}
	language := cfg.Language
	if language == "" {
		language = "en-US"
	}

	cOptions := &interfaces.ClientOptions{Host: cfg.BaseURL}
	tOptions := &interfaces.PreRecordedTranscriptionOptions{
		Model:       model,
		Language:    language,
		Punctuate:   true,
		SmartFormat: true,
	}

	dg := api.New(client.NewREST(cfg.APIKey, cOptions))
	return &DeepgramProvider{
		fromStream: func(ctx context.Context, src io.Reader) ([]byte, error) {
			res, err := dg.FromStream(ctx, src, tOptions)
			if err != nil {
				return nil, err
			}
			return json.Marshal(res)
		},
	}
}

func (p *DeepgramProvider) Transcribe(ctx context.Context, wav []byte) (string, error) {
	raw, err := p.fromStream(ctx, bytes.NewReader(wav))
	if err != nil {
		return "", fmt.Errorf("deepgram transcription: %w", err)
	}
	return parsePrerecorded(raw)
}

func parsePrerecorded(raw []byte) (string, error) {
	var res prerecordedResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decode deepgram response: %w", err)
	}
	if len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript), nil
}
