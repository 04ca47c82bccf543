package vector

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"os"
	"path/filepath"
)

const mappingExt = ".idmap"

// mapping is the position to entry id table persisted next to the vector artifact.
type mapping struct {
	Model      string
	Dimensions int
	IDs        []string
	// Fingerprints[i] identifies the raw embedding stored at position i.
	Fingerprints []uint64
}

// fingerprint hashes the bit pattern of an embedding.
func fingerprint(vec []float32) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// writeFileAtomic writes path through a temporary file in the same directory and renames it
// into place, so readers see either the old or the new file.
func writeFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func saveMapping(path string, m mapping) error {
	return writeFileAtomic(path+mappingExt, func(w io.Writer) error {
		if err := gob.NewEncoder(w).Encode(m); err != nil {
			return fmt.Errorf("encode id map: %w", err)
		}
		return nil
	})
}

func loadMapping(path string) (mapping, error) {
	var m mapping
	f, err := os.Open(path + mappingExt)
	if err != nil {
		return m, fmt.Errorf("open id map file: %w", err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return m, fmt.Errorf("decode id map: %w", err)
	}
	return m, nil
}
