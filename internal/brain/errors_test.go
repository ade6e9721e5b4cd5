package brain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	if Retryable(errors.New("connection reset")) != true {
		t.Fatalf("generic error should be retryable")
	}
	if Retryable(fmt.Errorf("reply: %w", context.Canceled)) {
		t.Fatalf("cancellation should not be retryable")
	}
}
