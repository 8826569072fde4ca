package chunk

import (
	"sync"
	"sync/atomic"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
)

const (
	// Size is the edge length of a chunk in bricks.
	Size = cube.ChunkSize
	// Area is the number of bricks in one layer of a chunk.
	Area = Size * Size
	// Volume is the number of bricks in a chunk.
	Volume = Size * Size * Size
)

// Chunk is a cubic section of Size³ bricks. A Chunk owns its brick storage and
// is safe for concurrent use: reads and writes of bricks are serialised by a
// lock held by the Chunk itself.
type Chunk struct {
	mu sync.RWMutex
	// bricks holds all bricks, indexed by x | y<<4 | z<<8.
	bricks [Volume]brick.ID
	// heights holds the local Z of the highest non-empty brick per column,
	// indexed by x | y<<4, or -1 if the column is empty.
	heights [Area]int8
	// solid is the number of non-empty bricks.
	solid int

	revision  atomic.Uint64
	dirty     atomic.Bool
	generated atomic.Bool
	modified  atomic.Bool
}

// New returns a new Chunk filled with air.
func New() *Chunk {
	c := &Chunk{}
	for i := range c.heights {
		c.heights[i] = -1
	}
	return c
}

// FromBricks returns a Chunk holding a copy of the bricks passed, indexed as
// by Index. FromBricks panics if len(bricks) is not Volume.
func FromBricks(bricks []brick.ID) *Chunk {
	if len(bricks) != Volume {
		panic("chunk: brick slice has wrong length")
	}
	c := New()
	copy(c.bricks[:], bricks)
	for i, b := range c.bricks {
		if b.Empty() {
			continue
		}
		c.solid++
		col, z := i&(Area-1), int8(i>>8)
		if z > c.heights[col] {
			c.heights[col] = z
		}
	}
	return c
}

// Index returns the index of the local coordinates passed in a brick slice of
// Volume elements.
func Index(x, y, z uint8) int {
	return int(x) | int(y)<<4 | int(z)<<8
}

// Brick returns the brick at the local coordinates passed.
func (c *Chunk) Brick(x, y, z uint8) brick.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bricks[Index(x, y, z)]
}

// SetBrick sets the brick at the local coordinates passed and returns the
// brick that was there before. The chunk is marked dirty and modified.
func (c *Chunk) SetBrick(x, y, z uint8, b brick.ID) brick.ID {
	c.mu.Lock()
	prev := c.setBrick(x, y, z, b)
	c.revision.Add(1)
	c.dirty.Store(true)
	c.modified.Store(true)
	c.mu.Unlock()
	return prev
}

// setBrick writes a brick and keeps the column heights up to date. c.mu
// must be held for writing.
func (c *Chunk) setBrick(x, y, z uint8, b brick.ID) brick.ID {
	i := Index(x, y, z)
	prev := c.bricks[i]
	c.bricks[i] = b

	switch {
	case prev.Empty() && !b.Empty():
		c.solid++
	case !prev.Empty() && b.Empty():
		c.solid--
	}

	col := int(x) | int(y)<<4
	h := c.heights[col]
	if !b.Empty() {
		if int8(z) > h {
			c.heights[col] = int8(z)
		}
	} else if int8(z) == h {
		c.heights[col] = -1
		for lz := int(z) - 1; lz >= 0; lz-- {
			if !c.bricks[col|lz<<8].Empty() {
				c.heights[col] = int8(lz)
				break
			}
		}
	}
	return prev
}

// Fill calls f for every local coordinate in the chunk and stores the brick
// it returns. Fill does not mark the chunk as dirty or modified, and is meant
// for populating a chunk that is not yet visible to others.
func (c *Chunk) Fill(f func(x, y, z uint8) brick.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for z := range uint8(Size) {
		for y := range uint8(Size) {
			for x := range uint8(Size) {
				c.setBrick(x, y, z, f(x, y, z))
			}
		}
	}
	c.revision.Add(1)
}

// Highest returns the local Z of the highest non-empty brick in the column at
// x, y, or -1 if the column holds only empty bricks.
func (c *Chunk) Highest(x, y uint8) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int(c.heights[int(x)|int(y)<<4])
}

// Empty reports whether the chunk holds only empty bricks.
func (c *Chunk) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.solid == 0
}

// Revision returns a counter incremented with every change to the bricks of
// the chunk.
func (c *Chunk) Revision() uint64 {
	return c.revision.Load()
}

// Dirty reports whether the mesh of the chunk must be rebuilt.
func (c *Chunk) Dirty() bool {
	return c.dirty.Load()
}

// MarkDirty marks the mesh of the chunk stale. It is used when a neighbouring
// chunk changes at the shared boundary.
func (c *Chunk) MarkDirty() {
	c.dirty.Store(true)
}

// Generated reports whether the chunk was populated by a generator or
// restored from storage.
func (c *Chunk) Generated() bool {
	return c.generated.Load()
}

// MarkGenerated marks the chunk as populated. The chunk becomes dirty so that
// it is meshed, and is considered unmodified.
func (c *Chunk) MarkGenerated() {
	c.generated.Store(true)
	c.modified.Store(false)
	c.dirty.Store(true)
}

// Modified reports whether the chunk holds changes that were not yet
// persisted.
func (c *Chunk) Modified() bool {
	return c.modified.Load()
}

// MarkModified marks the chunk as holding unsaved changes.
func (c *Chunk) MarkModified() {
	c.modified.Store(true)
}

// MarkSaved clears the modified flag if the chunk has not changed since
// revision rev. It reports whether the flag was cleared.
func (c *Chunk) MarkSaved(rev uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.revision.Load() != rev {
		return false
	}
	c.modified.Store(false)
	return true
}
