// Package vectorprovider selects and constructs the configured vector.Store
// implementation (qdrant or pinecone) from environment configuration. It
// lives outside package vector to avoid an import cycle, since the qdrant
// and pinecone adapters both import vector for its shared types.
package vectorprovider

import (
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strings"
	"time"

	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/platform/pinecone"
	"github.com/moveset-labs/clipcore/internal/platform/qdrant"
	"github.com/moveset-labs/clipcore/internal/store/vector"
)

type Provider string

const (
	ProviderQdrant   Provider = "qdrant"
	ProviderPinecone Provider = "pinecone"
)

var (
	newPineconeClient      = pinecone.New
	newPineconeVectorStore = pinecone.NewVectorStore
	newQdrantVectorStore   = qdrant.NewVectorStore
)

type BootstrapErrorCode string

const (
	BootstrapErrorInvalidProvider    BootstrapErrorCode = "invalid_provider"
	BootstrapErrorQdrantConfigFailed BootstrapErrorCode = "qdrant_config_failed"
	BootstrapErrorConnectFailed      BootstrapErrorCode = "connect_failed"
	BootstrapErrorProviderInitFailed BootstrapErrorCode = "provider_init_failed"
	BootstrapErrorMissingAPIKey      BootstrapErrorCode = "missing_api_key"
)

type BootstrapError struct {
	Code     BootstrapErrorCode
	Provider string
	Cause    error
}

func (e *BootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *BootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveFromEnv selects and constructs the vector store implementation
// named by VECTOR_PROVIDER ("qdrant" or "pinecone", default "qdrant").
func ResolveFromEnv(log *logger.Logger) (vector.Store, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("VECTOR_PROVIDER")))
	if provider == "" {
		provider = string(ProviderQdrant)
	}

	switch Provider(provider) {
	case ProviderQdrant:
		cfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return nil, classifyBootstrapError(provider, err)
		}
		log.Info("selecting vector store provider",
			"provider", provider,
			"qdrant_url", cfg.URL,
			"qdrant_collection", cfg.Collection,
			"qdrant_vector_dim", cfg.VectorDim,
		)
		vs, err := newQdrantVectorStore(log, cfg)
		if err != nil {
			return nil, classifyBootstrapError(provider, err)
		}
		return vs, nil

	case ProviderPinecone:
		log.Info("selecting vector store provider", "provider", provider)
		apiKey := strings.TrimSpace(os.Getenv("PINECONE_API_KEY"))
		if apiKey == "" {
			return nil, &BootstrapError{Code: BootstrapErrorMissingAPIKey, Provider: provider,
				Cause: fmt.Errorf("PINECONE_API_KEY not set")}
		}
		pc, err := newPineconeClient(log, pinecone.Config{
			APIKey:     apiKey,
			APIVersion: strings.TrimSpace(os.Getenv("PINECONE_API_VERSION")),
			BaseURL:    strings.TrimSpace(os.Getenv("PINECONE_BASE_URL")),
			Timeout:    30 * time.Second,
		})
		if err != nil {
			return nil, classifyBootstrapError(provider, err)
		}
		vs, err := newPineconeVectorStore(log, pc)
		if err != nil {
			return nil, classifyBootstrapError(provider, err)
		}
		return vs, nil

	default:
		return nil, &BootstrapError{Code: BootstrapErrorInvalidProvider, Provider: provider,
			Cause: fmt.Errorf("unsupported vector provider %q", provider)}
	}
}

func classifyBootstrapError(provider string, err error) error {
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return &BootstrapError{Code: BootstrapErrorConnectFailed, Provider: provider, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &BootstrapError{Code: BootstrapErrorConnectFailed, Provider: provider, Cause: err}
	}
	if strings.Contains(strings.ToLower(err.Error()), "ready check failed") {
		return &BootstrapError{Code: BootstrapErrorConnectFailed, Provider: provider, Cause: err}
	}
	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		return &BootstrapError{Code: BootstrapErrorQdrantConfigFailed, Provider: provider, Cause: err}
	}
	return &BootstrapError{Code: BootstrapErrorProviderInitFailed, Provider: provider, Cause: err}
}
