package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so ambient shell state cannot
// leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY", "SWAGGER_ENABLED",
		"API_BASE_PATH", "DB_PATH", "MAX_CONTENT_RUNES",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
		"LLM_TEMPERATURE", "LLM_MAX_TOKENS", "LLM_TIMEOUT",
		"RATE_RPS", "RATE_BURST", "CORS_ALLOWED_ORIGINS", "IDEMPOTENCY_TTL",
		"REDIS_ADDR", "CACHE_TTL",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port = %q; want 8080", cfg.Port)
	}
	if cfg.APIBasePath != "/api" {
		t.Fatalf("base path = %q; want /api", cfg.APIBasePath)
	}
	if cfg.DBPath != "interview.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.LLM.Model != "gpt-3.5-turbo" || cfg.LLM.Temperature != 0.7 || cfg.LLM.MaxTokens != 200 {
		t.Fatalf("llm defaults = %+v", cfg.LLM)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("llm timeout = %v", cfg.LLM.Timeout)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("idempotency ttl = %v", cfg.IdempotencyTTL)
	}
	if cfg.Cache.Addr != "" {
		t.Fatalf("cache addr = %q; want disabled", cfg.Cache.Addr)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("gin mode = %q", cfg.GinMode)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	clearEnv(t)

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("err = %v; want OPENAI_API_KEY error", err)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		key, val, wantErr string
	}{
		{"LLM_TEMPERATURE", "3.5", "LLM_TEMPERATURE"},
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"LLM_MAX_TOKENS", "-1", "LLM_MAX_TOKENS"},
		{"OTEL_TRACES_SAMPLER_ARG", "2", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("OPENAI_API_KEY", "sk-test")
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v; want %s error", err, tc.wantErr)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "9090")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:1234/v1")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("GIN_MODE", "bogus")
	t.Setenv("LOG_LEVEL", "warning")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port = %q", cfg.Port)
	}
	// Leading slash added, trailing stripped.
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("base path = %q; want /api/v2", cfg.APIBasePath)
	}
	if cfg.LLM.BaseURL != "http://localhost:1234/v1" || cfg.LLM.Timeout != 5*time.Second {
		t.Fatalf("llm = %+v", cfg.LLM)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("cors = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Cache.Addr != "localhost:6379" {
		t.Fatalf("cache addr = %q", cfg.Cache.Addr)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("gin mode = %q; bogus should normalize to release", cfg.GinMode)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q; warning should normalize to warn", cfg.LogLevel)
	}
}

func TestMustLoadPanics(t *testing.T) {
	clearEnv(t)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic without OPENAI_API_KEY")
		}
	}()
	MustLoad()
}
