package save

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
)

// Memory is a provider that keeps encoded records in memory. It is used for
// worlds that need not outlive the process and in tests. The zero value is
// ready to use.
type Memory struct {
	mu     sync.Mutex
	meta   []byte
	chunks map[cube.ChunkPos][]byte
}

// NewMemory returns an empty Memory provider.
func NewMemory() *Memory {
	return &Memory{}
}

// Metadata returns the stored world metadata, or ErrNotFound if none was
// stored.
func (m *Memory) Metadata() (Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta == nil {
		return Metadata{}, ErrNotFound
	}
	return DecodeMetadata(m.meta)
}

// SaveMetadata stores the world metadata.
func (m *Memory) SaveMetadata(meta Metadata) error {
	b, err := EncodeMetadata(meta)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta = b
	return nil
}

// LoadChunk decodes the chunk stored at pos. ErrNotFound is returned if no
// chunk was stored there.
func (m *Memory) LoadChunk(pos cube.ChunkPos) (*chunk.Chunk, error) {
	m.mu.Lock()
	rec, ok := m.chunks[pos]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	got, bricks, err := DecodeChunk(rec)
	if err != nil {
		return nil, err
	}
	if got != pos {
		return nil, fmt.Errorf("%w: record for chunk %v stored at %v", ErrCorruptData, got, pos)
	}
	return chunk.FromBricks(bricks), nil
}

// StoreChunk encodes and stores the snapshot of the chunk at pos.
func (m *Memory) StoreChunk(pos cube.ChunkPos, snap chunk.Snapshot) error {
	return m.StoreRecord(pos, EncodeChunk(pos, snap.Bricks))
}

// StoreRecord stores an already encoded chunk record at pos.
func (m *Memory) StoreRecord(pos cube.ChunkPos, rec []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks == nil {
		m.chunks = make(map[cube.ChunkPos][]byte)
	}
	m.chunks[pos] = slices.Clone(rec)
	return nil
}

// Len returns the number of chunks stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}

// Chunks iterates over all chunks stored that can be decoded.
func (m *Memory) Chunks() iter.Seq2[cube.ChunkPos, []brick.ID] {
	return func(yield func(cube.ChunkPos, []brick.ID) bool) {
		m.mu.Lock()
		recs := maps.Clone(m.chunks)
		m.mu.Unlock()
		for pos, rec := range recs {
			if _, bricks, err := DecodeChunk(rec); err == nil && !yield(pos, bricks) {
				return
			}
		}
	}
}

// Close does nothing. The stored records stay available, so that a world may
// be opened again on the same Memory.
func (m *Memory) Close() error {
	return nil
}
