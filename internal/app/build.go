package app

import (
	"context"
	"fmt"

	"github.com/healthsphere/healthsphere/internal/brain"
	"github.com/healthsphere/healthsphere/internal/config"
	"github.com/healthsphere/healthsphere/internal/httpapi"
	"github.com/healthsphere/healthsphere/internal/observability"
	"github.com/healthsphere/healthsphere/internal/report"
	"github.com/healthsphere/healthsphere/internal/session"
	"github.com/healthsphere/healthsphere/internal/store"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Brain    brain.Adapter
	Store    store.Store
	Reports  *report.Generator
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	sessionStore, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("session store init failed: %w", err)
	}

	adapter, err := brain.NewAdapter(brain.Config{
		Mode:           cfg.BrainMode,
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.OpenAIModel,
		BaseURL:        cfg.OpenAIBaseURL,
		FallbackToMock: cfg.BrainFallbackToMock,
	})
	if err != nil {
		_ = sessionStore.Close()
		return nil, fmt.Errorf("brain adapter init failed: %w", err)
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.CallEvents.WithLabelValues("expired").Inc()
	})

	reports := report.NewGenerator(sessionStore, adapter)

	api := httpapi.New(cfg, sessions, sessionStore, adapter, reports, metrics)

	cleanup := func() error {
		return sessionStore.Close()
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Brain:    adapter,
		Store:    sessionStore,
		Reports:  reports,
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}
