// Package config loads the process-wide configuration every cmd entrypoint
// needs: pool sizing, timeouts, provider selection, credentials, and the
// filesystem roots the pipeline writes under. Loading is eager and
// validating — a missing required value fails at startup, not mid-job.
package config

import (
	"fmt"
	"strings"

	"github.com/moveset-labs/clipcore/internal/platform/envutil"
	"github.com/moveset-labs/clipcore/internal/platform/logger"

	"time"
)

type AIProvider string

const (
	AIProviderOpenAI AIProvider = "openai"
	AIProviderGemini AIProvider = "gemini"
)

// Config is the resolved, validated configuration for one process. Vector
// provider selection stays local to internal/store/vectorprovider.ResolveFromEnv
// (it reads VECTOR_PROVIDER itself); this struct only carries the knobs the
// Orchestrator and worker pool need directly.
type Config struct {
	LogMode string

	MaxConcurrentRequests int
	RequestTimeout        time.Duration

	AIProvider AIProvider

	OpenAIAPIKey string

	GeminiModel     string
	GeminiAPIKey    string
	GeminiBackupKey string

	PostgresDSN string

	ContentRoot string
	TempRoot    string
}

// Load reads env vars into a Config and validates the combination implied
// by AIProvider. It does not touch the network or filesystem.
func Load() (*Config, error) {
	cfg := &Config{
		LogMode:               envutil.String("LOG_MODE", "development"),
		MaxConcurrentRequests: envutil.Int("MAX_CONCURRENT_REQUESTS", 4),
		RequestTimeout:        time.Duration(envutil.Int("REQUEST_TIMEOUT_SECONDS", 60)) * time.Second,
		AIProvider:            AIProvider(strings.ToLower(envutil.String("AI_PROVIDER", "openai"))),
		OpenAIAPIKey:          envutil.String("OPENAI_API_KEY", ""),
		GeminiModel:           envutil.String("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiAPIKey:          envutil.String("GEMINI_API_KEY", ""),
		GeminiBackupKey:       envutil.String("GEMINI_API_BACKUP_KEY", ""),
		PostgresDSN:           envutil.String("POSTGRES_DSN", ""),
		ContentRoot:           envutil.String("CONTENT_ROOT", "./content"),
		TempRoot:              envutil.String("TEMP_ROOT", "./tmp"),
	}

	if cfg.MaxConcurrentRequests <= 0 {
		return nil, fmt.Errorf("MAX_CONCURRENT_REQUESTS must be positive, got %d", cfg.MaxConcurrentRequests)
	}
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	switch cfg.AIProvider {
	case AIProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER=openai")
		}
	case AIProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER=gemini")
		}
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q", cfg.AIProvider)
	}

	return cfg, nil
}

// NewLogger builds the process logger from Config.LogMode.
func NewLogger(cfg *Config) (*logger.Logger, error) {
	return logger.New(cfg.LogMode)
}
