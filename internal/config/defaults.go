package config

// Embedding providers.
const (
	ProviderHugot     = "hugot"
	ProviderONNX      = "onnx"
	ProviderOpenAI    = "openai"
	ProviderHeuristic = "heuristic"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8081
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/shika/data/db/knowledge.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/shika/data/indices/knowledge"
	}
	if cfg.Storage.IndexType == "" {
		cfg.Storage.IndexType = "memory"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderHugot
	}
	if cfg.Embedding.ModelName == "" {
		cfg.Embedding.ModelName = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/shika/data/models"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 512
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.BatchConcurrency == 0 {
		cfg.Embedding.BatchConcurrency = 2
	}
	if cfg.Embedding.OpenAI.Model == "" {
		cfg.Embedding.OpenAI.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.OpenAI.RequestsPerSecond == 0 {
		cfg.Embedding.OpenAI.RequestsPerSecond = 5
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 5
	}
	if cfg.Retrieval.MaxK == 0 {
		cfg.Retrieval.MaxK = 50
	}
	if cfg.Retrieval.DefaultThreshold == 0 {
		cfg.Retrieval.DefaultThreshold = 0.5
	}
	if cfg.Retrieval.ChatK == 0 {
		cfg.Retrieval.ChatK = 5
	}
	if cfg.Retrieval.ChatThreshold == 0 {
		cfg.Retrieval.ChatThreshold = 0.5
	}
	if cfg.Corpus.Debounce == "" {
		cfg.Corpus.Debounce = "2s"
	}
}
