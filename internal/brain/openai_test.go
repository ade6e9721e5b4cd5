package brain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type capturedCompletionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature         float64 `json:"temperature"`
	MaxCompletionTokens int64   `json:"max_completion_tokens"`
}

func newCompletionServer(t *testing.T, content string, captured *capturedCompletionRequest) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": content,
					},
				},
			},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestOpenAIAdapterReply(t *testing.T) {
	var captured capturedCompletionRequest
	ts := newCompletionServer(t, "Hello Anna, tell me more about the pain.", &captured)

	adapter, err := NewOpenAIAdapter(OpenAIConfig{APIKey: "sk-test", BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("NewOpenAIAdapter() error = %v", err)
	}

	resp, err := adapter.Reply(context.Background(), Request{
		SessionID:     "s1",
		PersonaPrompt: "You are an AI cardiology assistant.",
		History: []Message{
			{Role: "assistant", Content: "How can I help?"},
			{Role: "user", Content: "My chest hurts."},
		},
	})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if resp.Content != "Hello Anna, tell me more about the pain." {
		t.Fatalf("content = %q, want upstream completion", resp.Content)
	}

	if captured.Model != "gpt-4o" {
		t.Fatalf("model = %q, want default gpt-4o", captured.Model)
	}
	if captured.Temperature != 0.7 {
		t.Fatalf("temperature = %v, want 0.7", captured.Temperature)
	}
	if captured.MaxCompletionTokens != 500 {
		t.Fatalf("max_completion_tokens = %d, want 500", captured.MaxCompletionTokens)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("messages = %d, want system + 2 history", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || !strings.Contains(captured.Messages[0].Content, "cardiology") {
		t.Fatalf("system message = %+v, want persona prompt", captured.Messages[0])
	}
	if captured.Messages[2].Role != "user" || captured.Messages[2].Content != "My chest hurts." {
		t.Fatalf("last message = %+v, want triggering utterance", captured.Messages[2])
	}
}

func TestOpenAIAdapterEmptyContent(t *testing.T) {
	ts := newCompletionServer(t, "   ", nil)
	adapter, err := NewOpenAIAdapter(OpenAIConfig{APIKey: "sk-test", BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("NewOpenAIAdapter() error = %v", err)
	}
	if _, err := adapter.Reply(context.Background(), Request{History: []Message{{Role: "user", Content: "hi"}}}); err == nil {
		t.Fatalf("Reply() error = nil, want error for empty content")
	}
}

func TestOpenAIAdapterEmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-test","object":"chat.completion","choices":[]}`))
	}))
	defer ts.Close()

	adapter, err := NewOpenAIAdapter(OpenAIConfig{APIKey: "sk-test", BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("NewOpenAIAdapter() error = %v", err)
	}
	if _, err := adapter.Reply(context.Background(), Request{History: []Message{{Role: "user", Content: "hi"}}}); err == nil {
		t.Fatalf("Reply() error = nil, want error for empty choices")
	}
}

func TestOpenAIAdapterRequiresKey(t *testing.T) {
	if _, err := NewOpenAIAdapter(OpenAIConfig{}); err == nil {
		t.Fatalf("NewOpenAIAdapter() error = nil, want error for missing key")
	}
}
