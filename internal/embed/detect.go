package embed

import (
	"context"
	"net/http"
	"os"
	"time"
)

// ProviderType identifies an embedding provider implementation.
type ProviderType string

const (
	ProviderOllama ProviderType = "ollama"
	ProviderOpenAI ProviderType = "openai"
	// ProviderNone disables embeddings entirely; callers fall back to
	// lexical matching.
	ProviderNone ProviderType = "none"
)

// DetectConfig configures provider detection behavior.
type DetectConfig struct {
	OllamaURL      string
	PreferredModel string
	Timeout        time.Duration
}

// DefaultDetectConfig returns sensible defaults for provider detection.
func DefaultDetectConfig() DetectConfig {
	return DetectConfig{
		OllamaURL:      defaultOllamaURL,
		PreferredModel: defaultOllamaModel,
		Timeout:        5 * time.Second,
	}
}

// Detect probes for a usable embedding provider, preferring local Ollama over
// the OpenAI API. Returns ErrProviderUnavailable when neither is reachable;
// the caller decides whether that means lexical fallback or a hard failure.
func Detect(ctx context.Context, cfg DetectConfig) (Provider, error) {
	if cfg.OllamaURL == "" {
		cfg.OllamaURL = defaultOllamaURL
	}
	if cfg.PreferredModel == "" {
		cfg.PreferredModel = defaultOllamaModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultDetectConfig().Timeout
	}

	if url := os.Getenv("OLLAMA_HOST"); url != "" {
		cfg.OllamaURL = url
	}

	if ollamaReachable(ctx, cfg) {
		return NewOllamaProvider(OllamaConfig{
			URL:   cfg.OllamaURL,
			Model: cfg.PreferredModel,
		}), nil
	}

	if os.Getenv("OPENAI_API_KEY") != "" || os.Getenv("DOCDEX_OPENAI_API_KEY") != "" {
		return NewOpenAIProvider(OpenAIConfig{}), nil
	}

	return nil, ErrProviderUnavailable
}

func ollamaReachable(ctx context.Context, cfg DetectConfig) bool {
	client := &http.Client{Timeout: cfg.Timeout}

	req, err := http.NewRequestWithContext(ctx, "GET", cfg.OllamaURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
