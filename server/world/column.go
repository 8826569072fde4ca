package world

import (
	"sync"
	"sync/atomic"

	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/segmentio/fasthash/fnv1a"
)

// Column holds a chunk of the World along with the state of its loading. The
// chunk may only be used once the Column is ready.
type Column struct {
	*chunk.Chunk

	// err is set if the chunk could not be loaded or generated. It is written
	// before the Column is marked ready.
	err error
	// loaded is set once the chunk is in place. It is guarded by the loadMu
	// of the World.
	loaded bool

	ready   atomic.Bool
	readyCh chan struct{}

	// evictMu is held for reading by writes to the chunk and for writing
	// while the Column is removed from the World.
	evictMu sync.RWMutex
	evicted bool
}

// newColumn returns a new Column that is not yet ready.
func newColumn() *Column {
	return &Column{Chunk: chunk.New(), readyCh: make(chan struct{})}
}

// Ready reports whether the Column has finished loading or generating.
func (c *Column) Ready() bool {
	return c.ready.Load()
}

// waitReady blocks until the Column is marked ready and returns the error
// that occurred while loading it, if any.
func (c *Column) waitReady() error {
	if !c.ready.Load() {
		<-c.readyCh
	}
	return c.err
}

// markReady marks the Column as generated and unblocks any waiters.
func (c *Column) markReady() {
	if c.ready.Swap(true) {
		return
	}
	close(c.readyCh)
}

// usable reports whether the Column is ready and loaded without error.
func (c *Column) usable() bool {
	return c.ready.Load() && c.err == nil
}

// edit runs f unless the Column was evicted. No eviction happens while f
// runs. edit reports whether f was run.
func (c *Column) edit(f func()) bool {
	c.evictMu.RLock()
	defer c.evictMu.RUnlock()
	if c.evicted {
		return false
	}
	f()
	return true
}

// evict marks the Column evicted. Unless force is true, a Column holding
// unsaved changes is left alone and false is returned.
func (c *Column) evict(force bool) bool {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()
	if !force && c.Modified() {
		return false
	}
	c.evicted = true
	return true
}

const shardCount = 64

// shard is one part of the chunk map of a World. Each shard has its own lock,
// so that chunks in different shards may be inserted and removed
// concurrently.
type shard struct {
	mu     sync.RWMutex
	chunks map[cube.ChunkPos]*Column
}

// shardIndex returns the index of the shard holding the chunk at pos.
func shardIndex(pos cube.ChunkPos) int {
	h := fnv1a.HashUint64(uint64(uint32(pos[0]))<<32 | uint64(uint32(pos[1])))
	h = fnv1a.AddUint64(h, uint64(uint32(pos[2])))
	return int(h % shardCount)
}

// columnRef pairs a Column with its position.
type columnRef struct {
	pos cube.ChunkPos
	col *Column
}
