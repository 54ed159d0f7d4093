// Package config loads docdex configuration from file, environment, and
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultDataDir is the directory name for docdex data.
	DefaultDataDir = ".docdex"
	// DefaultIndexFile is the retrieval index snapshot filename.
	DefaultIndexFile = "index.json"
	// DefaultConfigFile is the config filename inside the data dir.
	DefaultConfigFile = "config.yaml"
)

// Config holds the application configuration.
type Config struct {
	// DataDir is where docdex keeps its snapshot and config.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
	// IndexPath is the retrieval index snapshot file.
	IndexPath string `mapstructure:"index_path" yaml:"index_path,omitempty"`

	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding,omitempty"`
	Chunking  ChunkingConfig  `mapstructure:"chunking" yaml:"chunking,omitempty"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the backend: "auto", "ollama", "openai", or "lexical".
	// "lexical" disables embeddings and uses keyword-overlap matching.
	Provider string `mapstructure:"provider" yaml:"provider,omitempty"`
	// Model is the embedding model name.
	Model string `mapstructure:"model" yaml:"model,omitempty"`
	// OllamaURL is the Ollama API URL.
	OllamaURL string `mapstructure:"ollama_url" yaml:"ollama_url,omitempty"`
	// Dimensions is the embedding vector dimension.
	Dimensions int `mapstructure:"dimensions" yaml:"dimensions,omitempty"`
	// OpenAIAPIKey can also come from OPENAI_API_KEY / DOCDEX_OPENAI_API_KEY.
	OpenAIAPIKey string `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
}

// ChunkingConfig holds document chunking settings.
type ChunkingConfig struct {
	// ChunkSize is the window size in words.
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size,omitempty"`
	// ChunkOverlap is the number of words shared between windows.
	ChunkOverlap int `mapstructure:"chunk_overlap" yaml:"chunk_overlap,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host,omitempty"`
	Port int    `mapstructure:"port" yaml:"port,omitempty"`
}

// DefaultConfig returns the default configuration rooted at dir.
func DefaultConfig(dir string) *Config {
	dataDir := filepath.Join(dir, DefaultDataDir)
	return &Config{
		DataDir:   dataDir,
		IndexPath: filepath.Join(dataDir, DefaultIndexFile),
		Embedding: EmbeddingConfig{
			Provider:   "auto",
			Model:      "nomic-embed-text",
			OllamaURL:  "http://localhost:11434",
			Dimensions: 768,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    512,
			ChunkOverlap: 50,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}
}

// Load reads configuration for the project rooted at dir. Values resolve in
// order: defaults, then .docdex/config.yaml if present, then DOCDEX_* env
// variables. A missing config file is fine.
func Load(dir string) (*Config, error) {
	cfg := DefaultConfig(dir)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(dir, DefaultDataDir))

	v.SetEnvPrefix("DOCDEX")
	v.AutomaticEnv()
	for _, key := range []struct{ key, env string }{
		{"data_dir", "DOCDEX_DATA_DIR"},
		{"index_path", "DOCDEX_INDEX_PATH"},
		{"embedding.provider", "DOCDEX_EMBEDDING_PROVIDER"},
		{"embedding.model", "DOCDEX_EMBEDDING_MODEL"},
		{"embedding.ollama_url", "DOCDEX_OLLAMA_URL"},
		{"embedding.dimensions", "DOCDEX_EMBEDDING_DIMENSIONS"},
		{"embedding.openai_api_key", "DOCDEX_OPENAI_API_KEY"},
		{"chunking.chunk_size", "DOCDEX_CHUNK_SIZE"},
		{"chunking.chunk_overlap", "DOCDEX_CHUNK_OVERLAP"},
		{"server.host", "DOCDEX_SERVER_HOST"},
		{"server.port", "DOCDEX_SERVER_PORT"},
	} {
		_ = v.BindEnv(key.key, key.env)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.IndexPath == "" {
		cfg.IndexPath = filepath.Join(cfg.DataDir, DefaultIndexFile)
	}
	return cfg, nil
}

// Write saves cfg as YAML to its data dir, creating the directory if needed.
// Used by `docdex init` to seed an editable config file.
func (c *Config) Write() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	path := filepath.Join(c.DataDir, DefaultConfigFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
