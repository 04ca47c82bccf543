package embedding

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/shika/internal/telemetry"
	"github.com/hyperjump/shika/pkg/utils"
)

// Generator is the embedding entry point used by the rest of the engine. It cleans and truncates
// input, serves repeated texts from an LRU cache and hides primary provider failures behind the
// heuristic fallback. Once the primary fails the Generator stays in fallback mode for the rest of
// the process, so the index never sees vectors from two models mixed together.
type Generator struct {
	primary          Embedder
	fallback         Embedder
	degraded         atomic.Bool
	degradeOnce      sync.Once
	maxTokens        int
	batchSize        int
	batchConcurrency int
	cache            *EmbeddingCache
	logger           *zap.Logger
	metrics          *telemetry.Metrics
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) GeneratorOption {
	return func(g *Generator) { g.metrics = m }
}

// WithCacheSize sets the LRU capacity; zero disables the cache.
func WithCacheSize(n int) GeneratorOption {
	return func(g *Generator) { g.cache = NewEmbeddingCache(n) }
}

// WithMaxTokens sets the word budget for the primary model. The fallback budget is four characters per token.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithBatchSize sets how many texts go to the provider per batch call.
func WithBatchSize(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithBatchConcurrency bounds how many batch calls run at once.
func WithBatchConcurrency(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.batchConcurrency = n
		}
	}
}

// WithFallback replaces the heuristic fallback embedder.
func WithFallback(e Embedder) GeneratorOption {
	return func(g *Generator) {
		if e != nil {
			g.fallback = e
		}
	}
}

// NewGenerator wraps primary with the heuristic fallback. A nil primary starts in fallback mode.
func NewGenerator(primary Embedder, opts ...GeneratorOption) *Generator {
	g := &Generator{
		primary:          primary,
		fallback:         NewHeuristicEmbedder(),
		maxTokens:        512,
		batchSize:        32,
		batchConcurrency: 1,
		cache:            NewEmbeddingCache(10000),
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if primary == nil {
		g.degraded.Store(true)
		g.logger.Warn("primary embedding provider unavailable, using fallback",
			zap.String("model", g.fallback.Model()),
			zap.Int("dimensions", g.fallback.Dimensions()))
	}
	g.metrics.SetEmbeddingMode(string(g.Mode()))
	return g
}

// Mode reports whether the primary or the fallback embedder is active.
func (g *Generator) Mode() Mode {
	if g.degraded.Load() {
		return ModeFallback
	}
	return ModePrimary
}

// Model returns the active model name.
func (g *Generator) Model() string {
	return g.active().Model()
}

// Dimensions returns the active vector length.
func (g *Generator) Dimensions() int {
	return g.active().Dimensions()
}

func (g *Generator) active() Embedder {
	if g.degraded.Load() {
		return g.fallback
	}
	return g.primary
}

func (g *Generator) modeOf(e Embedder) Mode {
	if e == g.fallback {
		return ModeFallback
	}
	return ModePrimary
}

func (g *Generator) degrade(err error) {
	g.degradeOnce.Do(func() {
		g.degraded.Store(true)
		g.logger.Warn("primary embedding provider failed, degrading to fallback",
			zap.Error(err),
			zap.String("fallback_model", g.fallback.Model()),
			zap.Int("fallback_dimensions", g.fallback.Dimensions()))
		g.metrics.Degraded()
		g.metrics.SetEmbeddingMode(string(ModeFallback))
	})
}

// Clean collapses whitespace and truncates text to the budget of the given mode.
func (g *Generator) Clean(text string, mode Mode) string {
	text = utils.CollapseWhitespace(text)
	var cut bool
	if mode == ModeFallback {
		text, cut = utils.TruncateRunes(text, g.maxTokens*4)
	} else {
		text, cut = utils.TruncateWords(text, g.maxTokens)
	}
	if cut {
		g.logger.Debug("embedding input truncated", zap.String("mode", string(mode)), zap.Int("max_tokens", g.maxTokens))
		g.metrics.Truncated()
	}
	return text
}

// QAText is the text embedded for a question/answer pair.
func QAText(question, answer string) string {
	return "Q: " + question + "\nA: " + answer
}

// EmbedQA embeds a question/answer pair.
func (g *Generator) EmbedQA(ctx context.Context, question, answer string) ([]float32, string, error) {
	return g.Embed(ctx, QAText(question, answer))
}

// Embed returns the vector for text and the model that produced it. Primary failures switch the
// Generator to fallback mode and are not returned; an error means the fallback failed too.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, string, error) {
	e := g.active()
	vec, err := g.embedWith(ctx, e, text)
	if err == nil {
		return vec, e.Model(), nil
	}
	if e == g.fallback {
		return nil, "", fmt.Errorf("fallback embedding failed: %w", err)
	}
	g.degrade(err)
	vec, err = g.embedWith(ctx, g.fallback, text)
	if err != nil {
		return nil, "", fmt.Errorf("fallback embedding failed: %w", err)
	}
	return vec, g.fallback.Model(), nil
}

func (g *Generator) embedWith(ctx context.Context, e Embedder, text string) ([]float32, error) {
	mode := g.modeOf(e)
	cleaned := g.Clean(text, mode)
	key := cacheKey(e.Model(), cleaned)
	if vec, ok := g.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := e.Embed(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	if len(vec) != e.Dimensions() {
		return nil, fmt.Errorf("embedder %s returned %d values, want %d", e.Model(), len(vec), e.Dimensions())
	}
	g.cache.Set(key, vec)
	g.metrics.Embedded(string(mode), 1)
	return vec, nil
}

// EmbedBatch embeds texts through the provider's batch path in chunks and returns the vectors in
// input order with the model that produced all of them. Each vector is identical to what Embed
// returns for the same text.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, string, error) {
	if len(texts) == 0 {
		return nil, g.Model(), nil
	}
	e := g.active()
	vecs, err := g.embedBatchWith(ctx, e, texts)
	if err == nil {
		return vecs, e.Model(), nil
	}
	if e == g.fallback {
		return nil, "", fmt.Errorf("fallback embedding failed: %w", err)
	}
	g.degrade(err)
	vecs, err = g.embedBatchWith(ctx, g.fallback, texts)
	if err != nil {
		return nil, "", fmt.Errorf("fallback embedding failed: %w", err)
	}
	return vecs, g.fallback.Model(), nil
}

func (g *Generator) embedBatchWith(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	mode := g.modeOf(e)
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var pending []int
	var pendingTexts []string
	for i, text := range texts {
		cleaned := g.Clean(text, mode)
		keys[i] = cacheKey(e.Model(), cleaned)
		if vec, ok := g.cache.Get(keys[i]); ok {
			out[i] = vec
			continue
		}
		pending = append(pending, i)
		pendingTexts = append(pendingTexts, cleaned)
	}
	if len(pending) == 0 {
		return out, nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.batchConcurrency)
	for start := 0; start < len(pending); start += g.batchSize {
		end := min(start+g.batchSize, len(pending))
		eg.Go(func() error {
			vecs, err := e.EmbedBatch(ctx, pendingTexts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedder %s returned %d vectors for %d texts", e.Model(), len(vecs), end-start)
			}
			for j, vec := range vecs {
				if len(vec) != e.Dimensions() {
					return fmt.Errorf("embedder %s returned %d values, want %d", e.Model(), len(vec), e.Dimensions())
				}
				out[pending[start+j]] = vec
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for _, i := range pending {
		g.cache.Set(keys[i], out[i])
	}
	g.metrics.Embedded(string(mode), len(pending))
	return out, nil
}

// Close releases both embedders.
func (g *Generator) Close() error {
	var err error
	if g.primary != nil {
		err = g.primary.Close()
	}
	if ferr := g.fallback.Close(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}
