package brain

import (
	"context"
	"errors"

	oai "github.com/openai/openai-go"

	"github.com/healthsphere/healthsphere/internal/reliability"
)

// Retryable reports whether a reply error is transient. Callers surface this
// so clients know a later utterance may still succeed.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		return reliability.IsRetryableHTTPStatus(apierr.StatusCode)
	}
	return true
}
