// Package brickdb implements a world.Provider that stores a brick world in a
// LevelDB database. Every chunk is stored as a single record under a key
// derived from its position.
package brickdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/brickgame/brickworld/server/world/save"
	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/util"
)

// Compile time check to make sure DB implements world.Provider.
var _ world.Provider = (*DB)(nil)

// DB implements a world provider for a brick world. It stores chunk records
// in LevelDB and the world metadata under a fixed key.
type DB struct {
	conf Config
	ldb  *leveldb.DB
	dir  string
}

const (
	// keyChunk prefixes the keys of chunk records.
	keyChunk = 'c'
	// chunkKeyLen is the length of a chunk key: the prefix and three int32
	// coordinates.
	chunkKeyLen = 1 + 12
)

// keyMetadata holds the world metadata record.
var keyMetadata = []byte("~metadata")

// Open creates a new DB reading and writing from/to files under the path
// passed, using the default Config.
func Open(dir string) (*DB, error) {
	var conf Config
	return conf.Open(dir)
}

// Dir returns the directory the DB was opened in.
func (db *DB) Dir() string {
	return db.dir
}

// Metadata reads the world metadata. save.ErrNotFound is returned for an
// empty database.
func (db *DB) Metadata() (save.Metadata, error) {
	b, err := db.ldb.Get(keyMetadata, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return save.Metadata{}, save.ErrNotFound
	} else if err != nil {
		return save.Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	return save.DecodeMetadata(b)
}

// SaveMetadata writes the world metadata.
func (db *DB) SaveMetadata(m save.Metadata) error {
	b, err := save.EncodeMetadata(m)
	if err != nil {
		return err
	}
	if err := db.ldb.Put(keyMetadata, b, nil); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// LoadChunk reads the chunk at the position passed. save.ErrNotFound is
// returned if it was never stored.
func (db *DB) LoadChunk(pos cube.ChunkPos) (*chunk.Chunk, error) {
	b, err := db.ldb.Get(chunkKey(pos), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, save.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("read chunk %v: %w", pos, err)
	}
	got, bricks, err := save.DecodeChunk(b)
	if err != nil {
		return nil, fmt.Errorf("decode chunk %v: %w", pos, err)
	}
	if got != pos {
		return nil, fmt.Errorf("%w: record for chunk %v stored at %v", save.ErrCorruptData, got, pos)
	}
	return chunk.FromBricks(bricks), nil
}

// StoreChunk writes the snapshot of the chunk at the position passed.
func (db *DB) StoreChunk(pos cube.ChunkPos, snap chunk.Snapshot) error {
	if err := db.ldb.Put(chunkKey(pos), save.EncodeChunk(pos, snap.Bricks), nil); err != nil {
		return fmt.Errorf("write chunk %v: %w", pos, err)
	}
	return nil
}

// DeleteChunk removes the chunk at the position passed, so that it is
// generated again the next time it is loaded.
func (db *DB) DeleteChunk(pos cube.ChunkPos) error {
	return db.ldb.Delete(chunkKey(pos), nil)
}

// Chunks iterates over all chunks in the database in key order. Records that
// cannot be decoded are logged and skipped.
func (db *DB) Chunks() iter.Seq2[cube.ChunkPos, []brick.ID] {
	return func(yield func(cube.ChunkPos, []brick.ID) bool) {
		it := db.ldb.NewIterator(util.BytesPrefix([]byte{keyChunk}), nil)
		defer it.Release()
		for it.Next() {
			if len(it.Key()) != chunkKeyLen {
				continue
			}
			pos, bricks, err := save.DecodeChunk(it.Value())
			if err != nil {
				db.conf.Log.Error("iterate chunks: "+err.Error(), "key", fmt.Sprintf("%x", it.Key()))
				continue
			}
			if !yield(pos, bricks) {
				return
			}
		}
		if err := it.Error(); err != nil {
			db.conf.Log.Error("iterate chunks: " + err.Error())
		}
	}
}

// Close closes the database.
func (db *DB) Close() error {
	db.conf.Log.Debug("Closing world database...")
	return db.ldb.Close()
}

// chunkKey returns the key of the chunk record at pos.
func chunkKey(pos cube.ChunkPos) []byte {
	b := make([]byte, 1, chunkKeyLen)
	b[0] = keyChunk
	b = binary.LittleEndian.AppendUint32(b, uint32(pos[0]))
	b = binary.LittleEndian.AppendUint32(b, uint32(pos[1]))
	return binary.LittleEndian.AppendUint32(b, uint32(pos[2]))
}
