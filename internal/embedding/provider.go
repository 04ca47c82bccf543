package embedding

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/shika/internal/config"
	"github.com/hyperjump/shika/internal/telemetry"
)

// NewProvider builds the primary embedder named by cfg.Provider. The heuristic provider has no
// primary, so it returns nil with no error.
func NewProvider(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderHugot, "":
		e, err := NewHugotEmbedder(cfg.ModelName, cfg.ModelPath, true)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderONNX:
		path := cfg.ModelPath
		if filepath.Ext(path) != ".onnx" {
			path = filepath.Join(path, "model.onnx")
		}
		e, err := NewONNXEmbedder(path, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderOpenAI:
		o := cfg.OpenAI
		e, err := NewOpenAIEmbedder(o.APIKey, o.BaseURL, o.Model, o.Dimensions, o.RequestsPerSecond)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderHeuristic:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: hugot, onnx, openai, heuristic)", cfg.Provider)
	}
}

// NewGeneratorFromConfig builds the configured provider and wraps it in a Generator. A provider
// that cannot be constructed is logged and the Generator starts in fallback mode.
func NewGeneratorFromConfig(cfg config.EmbeddingConfig, logger *zap.Logger, metrics *telemetry.Metrics) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	primary, err := NewProvider(cfg)
	if err != nil {
		logger.Warn("embedding provider unavailable", zap.String("provider", cfg.Provider), zap.Error(err))
		primary = nil
	} else if primary != nil {
		logger.Info("embedding provider ready",
			zap.String("provider", cfg.Provider),
			zap.String("model", primary.Model()),
			zap.Int("dimensions", primary.Dimensions()))
	}
	return NewGenerator(primary,
		WithLogger(logger),
		WithMetrics(metrics),
		WithCacheSize(cfg.CacheSize),
		WithMaxTokens(cfg.MaxTokens),
		WithBatchSize(cfg.BatchSize),
		WithBatchConcurrency(cfg.BatchConcurrency),
	)
}
