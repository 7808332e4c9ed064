package config

import "testing"

func TestLoad_FailsWithoutPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when POSTGRES_DSN is unset")
	}
}

func TestLoad_FailsWithoutOpenAIKeyWhenProviderIsOpenAI(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/test")
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is unset and AI_PROVIDER=openai")
	}
}

func TestLoad_AcceptsGeminiProviderWithGeminiKey(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/test")
	t.Setenv("AI_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AIProvider != AIProviderGemini {
		t.Fatalf("expected gemini provider, got %q", cfg.AIProvider)
	}
}

func TestLoad_RejectsUnsupportedProvider(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/test")
	t.Setenv("AI_PROVIDER", "anthropic")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported AI_PROVIDER")
	}
}

func TestLoad_DefaultsMaxConcurrentRequests(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/test")
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MAX_CONCURRENT_REQUESTS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxConcurrentRequests != 4 {
		t.Fatalf("expected default of 4, got %d", cfg.MaxConcurrentRequests)
	}
}
