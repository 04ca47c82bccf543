package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
)

// HugotEmbedder runs a sentence-transformers feature extraction pipeline on hugot's pure Go backend.
type HugotEmbedder struct {
	session    *hugot.Session
	run        func(texts []string) ([][]float32, error)
	model      string
	dimensions int
	mu         sync.Mutex
}

// PrepareModel returns the local directory of modelName under modelDir, downloading it when
// missing and download is true.
func PrepareModel(modelName, modelDir string, download bool) (string, error) {
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat model: %w", err)
	}
	if !download {
		return "", fmt.Errorf("model %s not found in %s", modelName, modelDir)
	}
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(modelName, modelDir, opts)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return downloaded, nil
}

// NewHugotEmbedder loads modelName from modelDir (downloading if allowed) and probes the pipeline
// once to learn the embedding dimension.
func NewHugotEmbedder(modelName, modelDir string, download bool) (*HugotEmbedder, error) {
	modelPath, err := PrepareModel(modelName, modelDir, download)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "knowledge-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	e := &HugotEmbedder{
		session: session,
		model:   modelName,
		run: func(texts []string) ([][]float32, error) {
			result, err := pipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			return result.Embeddings, nil
		},
	}

	probe, err := e.run([]string{"dimension probe"})
	if err != nil || len(probe) != 1 || len(probe[0]) == 0 {
		_ = session.Destroy()
		if err == nil {
			err = errors.New("empty probe embedding")
		}
		return nil, fmt.Errorf("failed to probe embedding pipeline: %w", err)
	}
	e.dimensions = len(probe[0])
	return e, nil
}

// Embed returns the embedding for text.
func (e *HugotEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch runs the pipeline once over all texts.
func (e *HugotEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("hugot embedder is closed")
	}
	vecs, err := e.run(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("pipeline returned %d embeddings for %d texts", len(vecs), len(texts))
	}
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		out[i] = cloneVector(v)
	}
	return out, nil
}

// Dimensions returns the probed embedding dimension.
func (e *HugotEmbedder) Dimensions() int { return e.dimensions }

// Model returns the model name.
func (e *HugotEmbedder) Model() string { return e.model }

// Close destroys the hugot session.
func (e *HugotEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
