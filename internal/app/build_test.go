package app

import (
	"context"
	"testing"
	"time"

	"github.com/healthsphere/healthsphere/internal/config"
)

func TestBuildWithMockBrainAndInMemoryStore(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:         "test_app_build_" + time.Now().Format("150405000000000"),
		SessionInactivityTimeout: time.Minute,
		SilenceWindow:            time.Second,
		ReplyTimeout:             time.Second,
		BrainMode:                "mock",
		DefaultSpecialist:        "general",
	}

	result, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if result.API == nil || result.Sessions == nil || result.Brain == nil || result.Store == nil || result.Reports == nil {
		t.Fatalf("Build() returned incomplete result: %+v", result)
	}
	if result.API.Router() == nil {
		t.Fatalf("Router() = nil")
	}
}

func TestBuildRejectsBadBrainMode(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:         "test_app_badmode_" + time.Now().Format("150405000000000"),
		SessionInactivityTimeout: time.Minute,
		BrainMode:                "psychic",
	}
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() error = nil, want error for bad brain mode")
	}
}
