package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/hyperjump/shika/pkg/utils"
)

const memoryExt = ".vec"

// MemoryBackend is exhaustive inner product search over vectors held in memory.
type MemoryBackend struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryBackend creates an empty memory backend.
func NewMemoryBackend(dimensions int) (*MemoryBackend, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryBackend{dimensions: dimensions}, nil
}

// Type returns "memory".
func (m *MemoryBackend) Type() string {
	return string(BackendMemory)
}

// Dimensions returns the vector length.
func (m *MemoryBackend) Dimensions() int {
	return m.dimensions
}

// Add appends copies of vectors. Either all vectors are added or none.
func (m *MemoryBackend) Add(_ context.Context, vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != m.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vectors {
		vec := make([]float32, m.dimensions)
		copy(vec, v)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Search returns the top-k vectors by inner product. Ties keep insertion order.
func (m *MemoryBackend) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.vectors) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits := make([]Hit, len(m.vectors))
	for i, vec := range m.vectors {
		hits[i] = Hit{Position: i, Score: utils.Dot(query, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Save writes path+".vec": a zstd stream of dimension (4), count (4) and the little-endian vectors.
func (m *MemoryBackend) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return writeFileAtomic(path+memoryExt, func(w io.Writer) error {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("create zstd writer: %w", err)
		}
		bw := bufio.NewWriter(enc)
		if err := binary.Write(bw, binary.LittleEndian, uint32(m.dimensions)); err != nil {
			_ = enc.Close()
			return fmt.Errorf("write dimensions: %w", err)
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.vectors))); err != nil {
			_ = enc.Close()
			return fmt.Errorf("write count: %w", err)
		}
		for _, vec := range m.vectors {
			if _, err := bw.Write(float32SliceToBytes(vec)); err != nil {
				_ = enc.Close()
				return fmt.Errorf("write vector: %w", err)
			}
		}
		if err := bw.Flush(); err != nil {
			_ = enc.Close()
			return fmt.Errorf("flush vectors: %w", err)
		}
		return enc.Close()
	})
}

// Load reads path+".vec" and replaces the in-memory contents.
func (m *MemoryBackend) Load(path string) error {
	f, err := os.Open(path + memoryExt)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	var dim, n uint32
	if err := binary.Read(dec, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, dim, m.dimensions)
	}
	if err := binary.Read(dec, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(dec, buf); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = vectors
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Size returns the number of vectors.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Close releases the vectors.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = nil
	return nil
}
