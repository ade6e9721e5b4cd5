package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message is one prior conversational turn in a reply request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries the full ordered history (oldest first, triggering user
// utterance last) plus the persona steering the assistant.
type Request struct {
	SessionID     string    `json:"session_id"`
	PersonaPrompt string    `json:"persona_prompt,omitempty"`
	History       []Message `json:"history"`
}

// Response is the assistant reply.
type Response struct {
	Content string `json:"content"`
}

// Adapter produces a single assistant reply for a consultation turn. The
// caller owns retry policy; implementations must not retry internally.
type Adapter interface {
	Reply(ctx context.Context, req Request) (Response, error)
}

// Config controls adapter construction.
type Config struct {
	Mode           string
	APIKey         string
	Model          string
	BaseURL        string
	RequestTimeout time.Duration
	FallbackToMock bool
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return NewMockAdapter(), nil
		}
		return newConfiguredOpenAI(cfg)
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("brain: API key is required for openai mode")
		}
		return newConfiguredOpenAI(cfg)
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("brain: unsupported adapter mode %q", cfg.Mode)
	}
}

func newConfiguredOpenAI(cfg Config) (Adapter, error) {
	adapter, err := NewOpenAIAdapter(OpenAIConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	if cfg.FallbackToMock {
		return NewFallbackAdapter(adapter, NewMockAdapter()), nil
	}
	return adapter, nil
}
