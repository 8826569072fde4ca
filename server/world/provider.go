package world

import (
	"io"

	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/brickgame/brickworld/server/world/save"
)

// Provider represents a value that may provide world data to a World value.
// It usually does the reading and writing of the world data so that the World
// may use it.
type Provider interface {
	io.Closer
	// Metadata loads the metadata of the world. save.ErrNotFound is returned
	// if the Provider holds no world yet.
	Metadata() (save.Metadata, error)
	// SaveMetadata stores the metadata of the world.
	SaveMetadata(m save.Metadata) error
	// LoadChunk loads the chunk at the position passed. save.ErrNotFound is
	// returned if the chunk was never stored, and an error wrapping
	// save.ErrCorruptData if it could not be decoded.
	LoadChunk(pos cube.ChunkPos) (*chunk.Chunk, error)
	// StoreChunk stores a snapshot of the chunk at the position passed.
	StoreChunk(pos cube.ChunkPos, snap chunk.Snapshot) error
}

// Compile time check to make sure NopProvider implements Provider.
var _ Provider = (*NopProvider)(nil)

// NopProvider implements a Provider that does not perform any disk I/O. It
// generates values on the run and dynamically, instead of reading and writing
// data, and otherwise returns empty values.
type NopProvider struct{}

func (NopProvider) Metadata() (save.Metadata, error) { return save.Metadata{}, save.ErrNotFound }
func (NopProvider) SaveMetadata(save.Metadata) error { return nil }
func (NopProvider) LoadChunk(cube.ChunkPos) (*chunk.Chunk, error) { return nil, save.ErrNotFound }
func (NopProvider) StoreChunk(cube.ChunkPos, chunk.Snapshot) error { return nil }
func (NopProvider) Close() error { return nil }
