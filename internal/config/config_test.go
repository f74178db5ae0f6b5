package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SESSION_BACKEND", "")
	t.Setenv("SESSION_IDLE_TIMEOUT", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SessionBackend != "memory" {
		t.Fatalf("expected default session backend, got %s", cfg.SessionBackend)
	}
	if cfg.SessionIdleTimeout != 2*time.Minute {
		t.Fatalf("expected default idle timeout, got %s", cfg.SessionIdleTimeout)
	}
	if cfg.MaxSuggestions != 3 {
		t.Fatalf("expected default max suggestions, got %d", cfg.MaxSuggestions)
	}
	if cfg.SearchWindowDays != 30 {
		t.Fatalf("expected default search window, got %d", cfg.SearchWindowDays)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SESSION_BACKEND", "Redis")
	t.Setenv("SESSION_IDLE_TIMEOUT", "5m")
	t.Setenv("MAX_SUGGESTIONS", "5")
	t.Setenv("MISTRAL_MODEL", "mistral-small-latest")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://heydoc.fr, https://widget.heydoc.fr")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.SessionBackend != "redis" {
		t.Fatalf("expected lowercased session backend, got %s", cfg.SessionBackend)
	}
	if cfg.SessionIdleTimeout != 5*time.Minute {
		t.Fatalf("expected idle timeout override, got %s", cfg.SessionIdleTimeout)
	}
	if cfg.MaxSuggestions != 5 {
		t.Fatalf("expected max suggestions override, got %d", cfg.MaxSuggestions)
	}
	if cfg.MistralModel != "mistral-small-latest" {
		t.Fatalf("expected mistral model override, got %s", cfg.MistralModel)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://widget.heydoc.fr" {
		t.Fatalf("expected parsed origins, got %v", cfg.CORSAllowedOrigins)
	}
}
