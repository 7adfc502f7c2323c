package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func anthropicReply(w http.ResponseWriter, blocks ...string) {
	content := []map[string]any{}
	for _, b := range blocks {
		content = append(content, map[string]any{"type": "text", "text": b})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-3-5-haiku-latest",
		"content":       content,
		"stop_reason":   "end_turn",
		"stop_sequence": "",
		"usage": map[string]any{
			"input_tokens":  10,
			"output_tokens": len(blocks),
		},
	})
}

func TestAnthropicCompleteSeparatesSystemPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}

		var req struct {
			Model     string `json:"model"`
			MaxTokens int64  `json:"max_tokens"`
			System    []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		if req.Model != "claude-3-5-haiku-latest" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if req.MaxTokens != defaultMaxTokens {
			t.Errorf("expected max_tokens %d, got %d", defaultMaxTokens, req.MaxTokens)
		}
		if len(req.System) != 1 || req.System[0].Text != "answer with one word" {
			t.Errorf("expected system prompt in top-level system field, got %#v", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content[0].Text != "it broke again" {
			t.Errorf("unexpected chat messages: %#v", req.Messages)
		}

		anthropicReply(w, " Nega", "tive ")
	}))
	defer server.Close()

	client := newAnthropicClient("test-key", "claude-3-5-haiku-latest", clientOptions{baseURL: server.URL, maxTokens: defaultMaxTokens})

	got, err := client.Complete(context.Background(), Request{System: "answer with one word", Prompt: "it broke again"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "Negative" {
		t.Fatalf("expected combined trimmed text, got %q", got)
	}
}

func TestAnthropic_Complete_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		anthropicReply(w)
	}))
	defer server.Close()

	client := newAnthropicClient("test-key", "claude-3-5-haiku-latest", clientOptions{baseURL: server.URL, maxTokens: defaultMaxTokens})

	_, err := client.Complete(context.Background(), Request{Prompt: "hello"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestAnthropic_WithMaxTokens(t *testing.T) {
	var capturedMaxTokens int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			MaxTokens int64 `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		capturedMaxTokens = req.MaxTokens
		anthropicReply(w, "ok")
	}))
	defer server.Close()

	client, err := NewClient("anthropic", "test-key", "claude-3-5-haiku-latest", WithBaseURL(server.URL), WithMaxTokens(5))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Complete(context.Background(), Request{Prompt: "hello"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if capturedMaxTokens != 5 {
		t.Fatalf("expected max_tokens 5, got %d", capturedMaxTokens)
	}
}
