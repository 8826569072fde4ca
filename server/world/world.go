package world

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/brickgame/brickworld/server/world/save"
)

var (
	// ErrOutOfBounds is returned for positions outside the Bounds of a World.
	ErrOutOfBounds = errors.New("world: position out of bounds")
	// ErrUnknownBrick is returned when setting a brick that is not a known
	// material.
	ErrUnknownBrick = errors.New("world: unknown brick")
	// ErrReadOnly is returned when changing a read-only World.
	ErrReadOnly = errors.New("world: read-only")
	// ErrClosed is returned by operations on a World that is closed.
	ErrClosed = errors.New("world: closed")
	// ErrGenerationFailure is returned for chunks whose generator panicked.
	ErrGenerationFailure = errors.New("world: chunk generation failed")
	// ErrBoxTooLarge is returned by ReadBox and WriteBox for boxes of more
	// than MaxBoxVolume bricks.
	ErrBoxTooLarge = errors.New("world: box too large")
)

// MaxBoxVolume is the largest number of bricks ReadBox and WriteBox accept.
const MaxBoxVolume = 1 << 24

// World implements a brick world. It manages the chunks of the world,
// generating them on first access and persisting them through a Provider.
// All methods of World are safe for simultaneous calls.
type World struct {
	conf Config
	o    sync.Once

	metaMu sync.Mutex
	meta   save.Metadata

	closing  chan struct{}
	running  sync.WaitGroup
	closeErr error

	// shards hold the chunks currently loaded, keyed by chunk position.
	shards [shardCount]shard

	dirtyMu sync.Mutex
	dirty   map[cube.ChunkPos]struct{}

	// loadMu serialises the final step of loading chunks.
	loadMu sync.Mutex

	generatorQueue chan generationTask
	// queueMu guards queueClosed. Tasks are only sent to generatorQueue while
	// it is held for reading and queueClosed is false.
	queueMu     sync.RWMutex
	queueClosed bool
	// pending counts goroutines still trying to send to generatorQueue.
	pending sync.WaitGroup
	// generatorQueueSaturation counts how often chunk generation tasks had to be
	// enqueued asynchronously because the worker queue was full.
	generatorQueueSaturation atomic.Uint64
	lastQueueSaturationLog   atomic.Uint64

	generated          atomic.Uint64
	loadedFromProvider atomic.Uint64
	regenerated        atomic.Uint64
	saved              atomic.Uint64
}

// New creates a new World with a NopProvider and a NopGenerator, so that
// nothing is persisted and chunks are empty.
func New() *World {
	var conf Config
	w, err := conf.New()
	if err != nil {
		// NopProvider never returns metadata, so this cannot happen.
		panic(err)
	}
	return w
}

// Metadata returns the metadata of the world.
func (w *World) Metadata() save.Metadata {
	w.metaMu.Lock()
	defer w.metaMu.Unlock()
	return w.meta
}

// Name returns the display name of the world.
func (w *World) Name() string {
	return w.Metadata().Name
}

// Seed returns the seed of the world.
func (w *World) Seed() int64 {
	return w.Metadata().Seed
}

// Bounds returns the Bounds of the World.
func (w *World) Bounds() cube.Bounds {
	return w.conf.Bounds
}

// Brick reads the brick at the position passed. If the chunk at that position
// is not yet loaded, it is loaded, or generated if it could not be found in
// the Provider, before the brick is returned.
func (w *World) Brick(pos cube.Pos) (brick.ID, error) {
	if !pos.ChunkInRange() {
		return brick.Air, fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
	}
	col, err := w.column(pos.Chunk())
	if err != nil {
		return brick.Air, err
	}
	x, y, z := pos.Local()
	return col.Brick(x, y, z), nil
}

// SetBrick writes the brick passed at a position in the World. The chunk
// holding the position is loaded or generated first. The chunk is marked
// dirty along with any loaded chunk that shares the face of the chunk the
// position lies on.
func (w *World) SetBrick(pos cube.Pos, b brick.ID) error {
	if w.conf.ReadOnly {
		return ErrReadOnly
	}
	if !b.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownBrick, b)
	}
	if !pos.ChunkInRange() {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
	}
	cpos := pos.Chunk()
	col, err := w.column(cpos)
	if err != nil {
		return err
	}
	_, err = w.setBrick(cpos, col, pos, b)
	return err
}

// setBrick writes a brick in col, which must hold pos, and marks the chunks
// affected dirty. If col was evicted before the write, the chunk is loaded
// again and written there. The Column written to is returned.
func (w *World) setBrick(cpos cube.ChunkPos, col *Column, pos cube.Pos, b brick.ID) (*Column, error) {
	x, y, z := pos.Local()
	for !col.edit(func() {
		col.SetBrick(x, y, z, b)
		w.recordDirty(cpos, col)
	}) {
		var err error
		if col, err = w.column(cpos); err != nil {
			return nil, err
		}
	}
	w.conf.Handler.HandleChunkDirty(cpos)
	for _, face := range chunk.OnBorder(x, y, z) {
		npos := cpos.Side(face)
		if n, ok := w.loadedColumn(npos); ok {
			w.markDirty(npos, n)
		}
	}
	return col, nil
}

// Chunk returns the chunk at the position passed. If it is not loaded, it is
// read from the Provider, or generated if it is not stored there. Generation
// of a chunk happens once, no matter how many callers request it at the same
// time.
//
// The chunk returned must only be read. Changes go through SetBrick or
// WriteBox, which mark the chunk and its neighbours dirty.
func (w *World) Chunk(pos cube.ChunkPos) (*chunk.Chunk, error) {
	col, err := w.column(pos)
	if err != nil {
		return nil, err
	}
	return col.Chunk, nil
}

// ChunkIfLoaded returns the chunk at the position passed if it is loaded,
// without loading or generating it. Like with Chunk, the chunk must only be
// read.
func (w *World) ChunkIfLoaded(pos cube.ChunkPos) (*chunk.Chunk, bool) {
	col, ok := w.loadedColumn(pos)
	if !ok {
		return nil, false
	}
	return col.Chunk, true
}

// Loaded reports whether the chunk at the position passed is loaded and
// ready.
func (w *World) Loaded(pos cube.ChunkPos) bool {
	_, ok := w.loadedColumn(pos)
	return ok
}

// EvictChunk removes the chunk at the position passed from the World without
// saving it. The caller must make sure any change to the chunk was saved
// before, or those changes are lost. EvictChunk reports whether a chunk was
// removed.
func (w *World) EvictChunk(pos cube.ChunkPos) bool {
	return w.evictColumn(pos, nil, true)
}

// evictColumn removes the Column at pos. If want is not nil, the Column is
// only removed if it is still the one at pos. Unless force is true, a Column
// with unsaved changes is kept. Writes to the Column that start after it was
// removed are redirected to a newly loaded Column.
func (w *World) evictColumn(pos cube.ChunkPos, want *Column, force bool) bool {
	s := &w.shards[shardIndex(pos)]
	s.mu.Lock()
	col, ok := s.chunks[pos]
	if !ok || (want != nil && col != want) || !col.evict(force) {
		s.mu.Unlock()
		return false
	}
	delete(s.chunks, pos)
	w.dirtyMu.Lock()
	delete(w.dirty, pos)
	w.dirtyMu.Unlock()
	s.mu.Unlock()

	w.conf.Handler.HandleChunkEvict(pos)
	return true
}

// LoadedChunkCount returns the number of chunks currently kept in memory by
// the world.
func (w *World) LoadedChunkCount() int {
	n := 0
	for i := range w.shards {
		s := &w.shards[i]
		s.mu.RLock()
		n += len(s.chunks)
		s.mu.RUnlock()
	}
	return n
}

// DirtyChunks returns the positions of all loaded chunks that became dirty
// since the previous call, sorted by position. Calling DirtyChunks does not
// clear the dirty flags of the chunks themselves.
func (w *World) DirtyChunks() []cube.ChunkPos {
	w.dirtyMu.Lock()
	positions := make([]cube.ChunkPos, 0, len(w.dirty))
	for pos := range w.dirty {
		positions = append(positions, pos)
	}
	clear(w.dirty)
	w.dirtyMu.Unlock()

	slices.SortFunc(positions, comparePos)
	return positions
}

func comparePos(a, b cube.ChunkPos) int {
	return cmp.Or(cmp.Compare(a[2], b[2]), cmp.Compare(a[1], b[1]), cmp.Compare(a[0], b[0]))
}

// column returns the ready Column at pos, loading or generating it if
// needed.
func (w *World) column(pos cube.ChunkPos) (*Column, error) {
	if !w.conf.Bounds.Contains(pos) {
		return nil, fmt.Errorf("%w: chunk %v", ErrOutOfBounds, pos)
	}
	select {
	case <-w.closing:
		return nil, ErrClosed
	default:
	}
	col, _ := w.requestColumn(pos)
	if err := col.waitReady(); err != nil {
		return nil, err
	}
	return col, nil
}

// requestColumn returns the Column at pos. If there is none, a new Column is
// inserted and its loading is scheduled. The bool returned is true if the
// Column was created by this call.
func (w *World) requestColumn(pos cube.ChunkPos) (*Column, bool) {
	s := &w.shards[shardIndex(pos)]
	s.mu.RLock()
	col, ok := s.chunks[pos]
	s.mu.RUnlock()
	if ok {
		return col, false
	}

	s.mu.Lock()
	if col, ok = s.chunks[pos]; ok {
		s.mu.Unlock()
		return col, false
	}
	col = newColumn()
	s.chunks[pos] = col
	s.mu.Unlock()

	w.generateChunkAsync(pos, col)
	return col, true
}

// loadedColumn returns the Column at pos if it is loaded and ready.
func (w *World) loadedColumn(pos cube.ChunkPos) (*Column, bool) {
	s := &w.shards[shardIndex(pos)]
	s.mu.RLock()
	col, ok := s.chunks[pos]
	s.mu.RUnlock()
	if !ok || !col.usable() {
		return nil, false
	}
	return col, true
}

// columns returns all ready columns for which the filter passed returns true.
// No shard lock is held while filter runs.
func (w *World) columns(filter func(pos cube.ChunkPos, col *Column) bool) []columnRef {
	var refs []columnRef
	for i := range w.shards {
		s := &w.shards[i]
		s.mu.RLock()
		start := len(refs)
		for pos, col := range s.chunks {
			refs = append(refs, columnRef{pos: pos, col: col})
		}
		s.mu.RUnlock()

		kept := refs[:start]
		for _, ref := range refs[start:] {
			if ref.col.usable() && filter(ref.pos, ref.col) {
				kept = append(kept, ref)
			}
		}
		refs = kept
	}
	return refs
}

// chunkLoaded is called by generator workers once the chunk in col is
// available, before col is marked ready. Loaded neighbours are marked dirty,
// because their faces towards this chunk were built while it was missing.
// loadMu makes sure that of two neighbours loaded at the same time, the one
// loaded last sees the other.
func (w *World) chunkLoaded(pos cube.ChunkPos, col *Column, generated bool) {
	w.loadMu.Lock()
	defer w.loadMu.Unlock()

	col.loaded = true
	w.conf.Handler.HandleChunkLoad(pos, generated)
	w.markDirty(pos, col)
	for _, face := range cube.Faces() {
		npos := pos.Side(face)
		s := &w.shards[shardIndex(npos)]
		s.mu.RLock()
		n, ok := s.chunks[npos]
		s.mu.RUnlock()
		if ok && n.loaded {
			w.markDirty(npos, n)
		}
	}
}

// markDirty marks the chunk in col dirty and records it for DirtyChunks.
func (w *World) markDirty(pos cube.ChunkPos, col *Column) {
	w.recordDirty(pos, col)
	w.conf.Handler.HandleChunkDirty(pos)
}

// recordDirty is markDirty without notifying the Handler.
func (w *World) recordDirty(pos cube.ChunkPos, col *Column) {
	col.MarkDirty()
	w.dirtyMu.Lock()
	w.dirty[pos] = struct{}{}
	w.dirtyMu.Unlock()
}

// HighestBrick returns the Z coordinate of the highest non-empty brick at
// x, y among the loaded chunks. False is returned if none of the loaded chunks
// in that column holds a brick there.
func (w *World) HighestBrick(x, y int) (int, bool) {
	if !(cube.Pos{x, y, 0}).ChunkInRange() {
		return 0, false
	}
	target := cube.Pos{x, y, 0}.Chunk()
	lx, ly, _ := cube.Pos{x, y, 0}.Local()
	refs := w.columns(func(pos cube.ChunkPos, _ *Column) bool {
		return pos[0] == target[0] && pos[1] == target[1]
	})
	slices.SortFunc(refs, func(a, b columnRef) int { return cmp.Compare(b.pos[2], a.pos[2]) })
	for _, ref := range refs {
		if h := ref.col.Highest(lx, ly); h >= 0 {
			return ref.pos.Origin()[2] + h, true
		}
	}
	return 0, false
}

// ReadBox returns the bricks in the box between the corners passed
// inclusive, ordered with X varying fastest, then Y, then Z. Boxes of more
// than MaxBoxVolume bricks are refused with ErrBoxTooLarge.
func (w *World) ReadBox(a, b cube.Pos) ([]brick.ID, error) {
	lo, hi, n, err := w.box(a, b)
	if err != nil {
		return nil, err
	}
	bricks := make([]brick.ID, 0, n)
	var (
		col  *Column
		cpos cube.ChunkPos
	)
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				pos := cube.Pos{x, y, z}
				if col == nil || pos.Chunk() != cpos {
					cpos = pos.Chunk()
					if col, err = w.column(cpos); err != nil {
						return nil, err
					}
				}
				lx, ly, lz := pos.Local()
				bricks = append(bricks, col.Brick(lx, ly, lz))
			}
		}
	}
	return bricks, nil
}

// WriteBox sets the bricks in the box between the corners passed inclusive,
// in the order used by ReadBox. If bricks holds a single brick, the whole box
// is filled with it. All chunks of the box are loaded before the first brick
// is written, so a box that cannot be loaded is left unchanged.
func (w *World) WriteBox(a, b cube.Pos, bricks []brick.ID) error {
	if w.conf.ReadOnly {
		return ErrReadOnly
	}
	lo, hi, n, err := w.box(a, b)
	if err != nil {
		return err
	}
	if len(bricks) != 1 && len(bricks) != n {
		return fmt.Errorf("write box: %d bricks for a box of %d", len(bricks), n)
	}
	for i, id := range bricks {
		if !id.Valid() {
			return fmt.Errorf("%w: %d at index %d", ErrUnknownBrick, id, i)
		}
	}
	clo, chi := lo.Chunk(), hi.Chunk()
	cols := make(map[cube.ChunkPos]*Column)
	for cz := int(clo[2]); cz <= int(chi[2]); cz++ {
		for cy := int(clo[1]); cy <= int(chi[1]); cy++ {
			for cx := int(clo[0]); cx <= int(chi[0]); cx++ {
				cpos := cube.ChunkPos{int32(cx), int32(cy), int32(cz)}
				if cols[cpos], err = w.column(cpos); err != nil {
					return err
				}
			}
		}
	}
	i := 0
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				pos := cube.Pos{x, y, z}
				cpos := pos.Chunk()
				id := bricks[0]
				if len(bricks) > 1 {
					id = bricks[i]
				}
				if cols[cpos], err = w.setBrick(cpos, cols[cpos], pos, id); err != nil {
					return err
				}
				i++
			}
		}
	}
	return nil
}

// box validates the box between the corners passed and returns its lowest
// and highest corner and its volume.
func (w *World) box(a, b cube.Pos) (lo, hi cube.Pos, n int, err error) {
	lo, hi = boxCorners(a, b)
	for _, p := range [2]cube.Pos{lo, hi} {
		if !p.ChunkInRange() || !w.conf.Bounds.Contains(p.Chunk()) {
			return lo, hi, 0, fmt.Errorf("%w: %v", ErrOutOfBounds, p)
		}
	}
	n = 1
	for i := range 3 {
		// Corners with chunks in range are far enough from the int limits for
		// the extent not to overflow.
		e := hi[i] - lo[i] + 1
		if e > MaxBoxVolume || n*e > MaxBoxVolume {
			return lo, hi, 0, fmt.Errorf("%w: %v to %v", ErrBoxTooLarge, lo, hi)
		}
		n *= e
	}
	return lo, hi, n, nil
}

func boxCorners(a, b cube.Pos) (lo, hi cube.Pos) {
	for i := range 3 {
		lo[i], hi[i] = min(a[i], b[i]), max(a[i], b[i])
	}
	return lo, hi
}

// Stats holds counters of a World.
type Stats struct {
	// Loaded is the number of chunks in memory.
	Loaded int
	// Generated is the number of chunks populated by the Generator.
	Generated uint64
	// FromProvider is the number of chunks read from the Provider.
	FromProvider uint64
	// Regenerated is the number of chunks generated because their stored data
	// was corrupt.
	Regenerated uint64
	// Saved is the number of chunks written to the Provider.
	Saved uint64
	// QueueSaturation is the number of times the generator queue was full.
	QueueSaturation uint64
}

// Stats returns the current counters of the World.
func (w *World) Stats() Stats {
	return Stats{
		Loaded:          w.LoadedChunkCount(),
		Generated:       w.generated.Load(),
		FromProvider:    w.loadedFromProvider.Load(),
		Regenerated:     w.regenerated.Load(),
		Saved:           w.saved.Load(),
		QueueSaturation: w.generatorQueueSaturation.Load(),
	}
}
