// Package config provides configuration loading and structs for the knowledge retrieval engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Corpus    CorpusConfig    `yaml:"corpus"`
}

// ServerConfig holds the ops HTTP endpoint settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and the persisted vector index.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	// IndexPath is the base path of the index artifacts; backends append their own extensions.
	IndexPath string `yaml:"index_path"`
	// IndexType selects the vector backend: "memory" or "faiss".
	IndexType string `yaml:"index_type"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is one of "hugot", "onnx", "openai" or "heuristic".
	Provider         string       `yaml:"provider"`
	ModelName        string       `yaml:"model_name"`
	ModelPath        string       `yaml:"model_path"`
	Dimensions       int          `yaml:"dimensions"`
	MaxTokens        int          `yaml:"max_tokens"`
	CacheSize        int          `yaml:"cache_size"`
	BatchSize        int          `yaml:"batch_size"`
	BatchConcurrency int          `yaml:"batch_concurrency"`
	OpenAI           OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig holds settings for the remote embeddings API.
type OpenAIConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// RetrievalConfig holds search defaults.
type RetrievalConfig struct {
	DefaultK         int     `yaml:"default_k"`
	MaxK             int     `yaml:"max_k"`
	DefaultThreshold float64 `yaml:"default_threshold"`
	ChatK            int     `yaml:"chat_k"`
	ChatThreshold    float64 `yaml:"chat_threshold"`
}

// CorpusConfig holds the seed corpus settings.
type CorpusConfig struct {
	// Path is an optional .yaml/.yml/.xlsx file seeded in addition to the built-in corpus.
	Path     string `yaml:"path"`
	Builtin  *bool  `yaml:"builtin"`
	Watch    bool   `yaml:"watch"`
	Debounce string `yaml:"debounce"`
}

// BuiltinOrDefault returns whether the built-in corpus is seeded; defaults to true when unset.
func (c *CorpusConfig) BuiltinOrDefault() bool {
	if c.Builtin != nil {
		return *c.Builtin
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Corpus.Path != "" {
		cfg.Corpus.Path = expandPath(cfg.Corpus.Path, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if cfg.Embedding.OpenAI.APIKey != "" {
		return
	}
	for _, name := range []string{"SHIKA_OPENAI_API_KEY", "OPENAI_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			cfg.Embedding.OpenAI.APIKey = v
			return
		}
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
