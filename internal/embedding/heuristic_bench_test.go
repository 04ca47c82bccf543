package embedding

import (
	"context"
	"testing"
)

func BenchmarkHeuristicEmbedder_Embed(b *testing.B) {
	e := NewHeuristicEmbedder()
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "Q: How often should I replace my toothbrush?\nA: Every three to four months.")
	}
}

func BenchmarkGenerator_EmbedCached(b *testing.B) {
	g := NewGenerator(nil)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = g.Embed(ctx, "benchmark query text for embedding")
	}
}
