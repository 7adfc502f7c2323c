package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewProviderUnknown(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Name: "whisper.cpp"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if p != nil {
		t.Fatalf("expected nil provider, got %#v", p)
	}
	if !strings.Contains(err.Error(), "unknown STT provider") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenAIProviderTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); !strings.Contains(auth, "test-key") {
			t.Errorf("expected auth header to include test-key, got %q", auth)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("expected model whisper-1, got %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			body, _ := io.ReadAll(file)
			if string(body) != "RIFF-audio" || header.Filename != "utterance.wav" {
				t.Errorf("unexpected upload %q named %q", body, header.Filename)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  I need help with my bill  "}`))
	}))
	defer server.Close()

	p, err := NewProvider(ProviderConfig{Name: "openai", APIKey: "test-key", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	got, err := p.Transcribe(context.Background(), []byte("RIFF-audio"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got != "I need help with my bill" {
		t.Fatalf("expected trimmed transcript, got %q", got)
	}
}

func TestOpenAIProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream failure"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: server.URL + "/v1"})
	if _, err := p.Transcribe(context.Background(), []byte("RIFF")); err == nil {
		t.Fatal("expected error from failing backend")
	}
}

func TestDeepgramProviderParsesFirstAlternative(t *testing.T) {
	var uploaded string
	p := &DeepgramProvider{fromStream: func(_ context.Context, src io.Reader) ([]byte, error) {
		b, _ := io.ReadAll(src)
		uploaded = string(b)
		return []byte(`{"results":{"channels":[{"alternatives":[{"transcript":" my order never arrived "},{"transcript":"ignored"}]}]}}`), nil
	}}

	got, err := p.Transcribe(context.Background(), []byte("RIFF-audio"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got != "my order never arrived" {
		t.Fatalf("unexpected transcript %q", got)
	}
	if uploaded != "RIFF-audio" {
		t.Fatalf("expected wav uploaded, got %q", uploaded)
	}
}

func TestDeepgramProviderEmptyResults(t *testing.T) {
	p := &DeepgramProvider{fromStream: func(context.Context, io.Reader) ([]byte, error) {
		return []byte(`{"results":{"channels":[]}}`), nil
	}}
	got, err := p.Transcribe(context.Background(), []byte("RIFF"))
	if err != nil || got != "" {
		t.Fatalf("expected empty transcript without error, got %q, %v", got, err)
	}
}

func TestDeepgramProviderError(t *testing.T) {
	p := &DeepgramProvider{fromStream: func(context.Context, io.Reader) ([]byte, error) {
		return nil, errors.New("401 unauthorized")
	}}
	_, err := p.Transcribe(context.Background(), []byte("RIFF"))
	if err == nil || !strings.Contains(err.Error(), "deepgram transcription") {
		t.Fatalf("expected wrapped deepgram error, got %v", err)
	}
}

func TestNewDeepgramProviderBuildsClient(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Name: "deepgram", APIKey: "dg-key"})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if dg, ok := p.(*DeepgramProvider); !ok || dg.fromStream == nil {
		t.Fatalf("expected configured deepgram provider, got %#v", p)
	}
}
