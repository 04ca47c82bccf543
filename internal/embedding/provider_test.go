package embedding

import (
	"testing"

	"github.com/hyperjump/shika/internal/config"
)

func TestNewProvider(t *testing.T) {
	e, err := NewProvider(config.EmbeddingConfig{Provider: config.ProviderHeuristic})
	if err != nil || e != nil {
		t.Errorf("heuristic provider: got %v, %v", e, err)
	}
	if _, err := NewProvider(config.EmbeddingConfig{Provider: "word2vec"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewProvider(config.EmbeddingConfig{Provider: config.ProviderOpenAI}); err == nil {
		t.Error("expected error for openai without key")
	}
}

func TestNewGeneratorFromConfig_FallsBack(t *testing.T) {
	cfg := config.EmbeddingConfig{
		Provider: config.ProviderHugot,
		// Stat fails below /dev/null, so no download is attempted.
		ModelName: "sentence-transformers/all-MiniLM-L6-v2",
		ModelPath: "/dev/null/models",
		MaxTokens: 512,
	}
	g := NewGeneratorFromConfig(cfg, nil, nil)
	if g.Mode() != ModeFallback {
		t.Errorf("Mode = %s, want fallback", g.Mode())
	}
}
