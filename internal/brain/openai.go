package brain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const (
	defaultModel          = "gpt-4o"
	defaultRequestTimeout = 30 * time.Second
	replyTemperature      = 0.7
	replyMaxTokens        = 500
)

// OpenAIConfig configures the OpenAI-backed adapter.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAIAdapter produces assistant replies through the OpenAI chat
// completions API.
type OpenAIAdapter struct {
	client oai.Client
	model  string
}

func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("brain: openai API key must not be empty")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIAdapter{
		client: oai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

func (a *OpenAIAdapter) Reply(ctx context.Context, req Request) (Response, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	messages = append(messages, oai.SystemMessage(BuildSystemPrompt(req.PersonaPrompt)))
	for _, m := range req.History {
		switch m.Role {
		case "assistant":
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(a.model),
		Messages:            messages,
		Temperature:         param.NewOpt(replyTemperature),
		MaxCompletionTokens: param.NewOpt(int64(replyMaxTokens)),
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("brain: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("brain: empty choices in completion response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return Response{}, errors.New("brain: completion returned empty content")
	}
	return Response{Content: content}, nil
}
