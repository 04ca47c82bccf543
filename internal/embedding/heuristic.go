package embedding

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"
)

// Heuristic embedder layout.
const (
	HeuristicModel      = "basic-text-similarity"
	HeuristicDimensions = 128

	letterOffset  = 0
	shapeOffset   = 26
	bigramOffset  = 30
	keywordOffset = 40
	stemOffset    = 50
	stemBuckets   = HeuristicDimensions - stemOffset
	stemLength    = 5
)

var (
	commonBigrams = []string{"th", "he", "in", "er", "an", "re", "ed", "nd", "on", "en"}
	dentalTerms   = []string{"tooth", "teeth", "dental", "gum", "cavity", "filling", "crown", "root", "cleaning", "hygiene"}
	stopwords     = toSet(strings.Fields(`a an the and or but if of to in on at by for with from is are was were
		be been am do does did how what when where which who why can could should would will may might
		i you it its this that these those my your our their me we they he she so as not no`))
)

// Per-group weights applied after each group is normalized on its own.
var groupWeights = []struct {
	from, to int
	weight   float64
}{
	{letterOffset, shapeOffset, 0.5},
	{shapeOffset, bigramOffset, 0.2},
	{bigramOffset, keywordOffset, 0.3},
	{keywordOffset, stemOffset, 0.6},
	{stemOffset, HeuristicDimensions, 1.0},
}

// HeuristicEmbedder derives a 128-dimensional vector from surface features of the text:
// letter frequencies, text shape, common bigrams, dental vocabulary and hashed word stems.
// It needs no model, never fails and always returns unit-length vectors.
type HeuristicEmbedder struct{}

// NewHeuristicEmbedder returns the fallback embedder.
func NewHeuristicEmbedder() *HeuristicEmbedder {
	return &HeuristicEmbedder{}
}

// Embed returns the feature vector for text.
func (e *HeuristicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return heuristicVector(text), nil
}

// EmbedBatch calls Embed for each text.
func (e *HeuristicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i], _ = e.Embed(ctx, text)
	}
	return embeddings, nil
}

// Dimensions returns 128.
func (e *HeuristicEmbedder) Dimensions() int { return HeuristicDimensions }

// Model returns the heuristic model tag.
func (e *HeuristicEmbedder) Model() string { return HeuristicModel }

// Close is a no-op.
func (e *HeuristicEmbedder) Close() error { return nil }

func heuristicVector(text string) []float32 {
	text = strings.Join(strings.Fields(text), " ")
	lower := strings.ToLower(text)
	v := make([]float64, HeuristicDimensions)

	for _, r := range lower {
		if r >= 'a' && r <= 'z' {
			v[letterOffset+int(r-'a')]++
		}
	}

	words := strings.Fields(lower)
	if n := len(words); n > 0 {
		var total int
		for _, w := range words {
			total += utf8.RuneCountInString(w)
		}
		v[shapeOffset] = float64(n) / 100
		v[shapeOffset+1] = float64(total) / float64(n) / 10
	}
	v[shapeOffset+2] = float64(utf8.RuneCountInString(text)) / 1000
	v[shapeOffset+3] = float64(countSentences(text)) / 10

	runes := []rune(lower)
	for i := 0; i+1 < len(runes); i++ {
		pair := string(runes[i : i+2])
		for j, bg := range commonBigrams {
			if pair == bg {
				v[bigramOffset+j]++
				break
			}
		}
	}

	for i, term := range dentalTerms {
		v[keywordOffset+i] = float64(strings.Count(lower, term))
	}

	for _, w := range Words(lower) {
		if utf8.RuneCountInString(w) < 2 || stopwords[w] {
			continue
		}
		if r := []rune(w); len(r) > stemLength {
			w = string(r[:stemLength])
		}
		v[stemOffset+int(hashString(w)%stemBuckets)]++
	}

	for _, g := range groupWeights {
		normalizeGroup(v[g.from:g.to], g.weight)
	}
	normalizeGroup(v, 1)

	out := make([]float32, HeuristicDimensions)
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func countSentences(text string) int {
	n := 0
	for _, s := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' }) {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

func normalizeGroup(g []float64, weight float64) {
	var sum float64
	for _, x := range g {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	scale := weight / math.Sqrt(sum)
	for i := range g {
		g[i] *= scale
	}
}

func toSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
