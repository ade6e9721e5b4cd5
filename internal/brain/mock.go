package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when no reply backend is
// configured.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Reply(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	return Response{Content: buildMockReply(req)}, nil
}

func buildMockReply(req Request) string {
	last := ""
	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Role == "user" {
			last = strings.TrimSpace(req.History[i].Content)
			break
		}
	}
	if last == "" {
		return "I am listening. Could you tell me a bit more about how you are feeling?"
	}
	return fmt.Sprintf("I understand you said: %s. Could you tell me more about your symptoms?", last)
}
