package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.BrainMode != "auto" {
		t.Fatalf("BrainMode = %q, want %q", cfg.BrainMode, "auto")
	}
	if cfg.SilenceWindow != 2*time.Second {
		t.Fatalf("SilenceWindow = %v, want 2s", cfg.SilenceWindow)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Fatalf("OpenAIModel = %q, want %q", cfg.OpenAIModel, "gpt-4o")
	}
	if cfg.DefaultSpecialist != "general" {
		t.Fatalf("DefaultSpecialist = %q, want %q", cfg.DefaultSpecialist, "general")
	}
	if cfg.RedactPII {
		t.Fatalf("RedactPII = true, want false by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_SILENCE_WINDOW", "750ms")
	t.Setenv("BRAIN_MODE", "mock")
	t.Setenv("APP_REDACT_PII", "true")
	t.Setenv("OPENAI_API_KEY", "  sk-test  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SilenceWindow != 750*time.Millisecond {
		t.Fatalf("SilenceWindow = %v, want 750ms", cfg.SilenceWindow)
	}
	if cfg.BrainMode != "mock" {
		t.Fatalf("BrainMode = %q, want %q", cfg.BrainMode, "mock")
	}
	if !cfg.RedactPII {
		t.Fatalf("RedactPII = false, want true")
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("OpenAIAPIKey = %q, want trimmed value", cfg.OpenAIAPIKey)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"APP_SILENCE_WINDOW", "50ms"},
		{"APP_SESSION_INACTIVITY_TIMEOUT", "1s"},
		{"APP_REPLY_TIMEOUT", "-1s"},
		{"BRAIN_MODE", "psychic"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q, want error", tc.key, tc.value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_SILENCE_WINDOW",
		"APP_REPLY_TIMEOUT",
		"APP_DEFAULT_SPECIALIST",
		"APP_REDACT_PII",
		"BRAIN_MODE",
		"BRAIN_FALLBACK_TO_MOCK",
		"OPENAI_API_KEY",
		"OPENAI_MODEL",
		"OPENAI_BASE_URL",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
