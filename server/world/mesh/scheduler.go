package mesh

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world"
	"github.com/brickgame/brickworld/server/world/chunk"
)

// Policy decides what happens to a chunk whose neighbours are not all loaded
// when its mesh should be rebuilt.
type Policy uint8

const (
	// TreatMissingAsAir builds the mesh straight away, drawing the faces
	// towards missing neighbours. The World marks the chunk dirty again once
	// such a neighbour loads, so those faces are removed later.
	TreatMissingAsAir Policy = iota
	// DeferUntilNeighbours postpones the rebuild until every neighbour inside
	// the bounds of the World is loaded.
	DeferUntilNeighbours
)

// Sink receives the meshes built by a Scheduler. HandleMesh is called from
// the worker goroutines and may be called for different chunks at the same
// time.
type Sink interface {
	HandleMesh(pos cube.ChunkPos, m *Mesh)
}

// SinkFunc is a function implementing Sink.
type SinkFunc func(pos cube.ChunkPos, m *Mesh)

// HandleMesh calls f.
func (f SinkFunc) HandleMesh(pos cube.ChunkPos, m *Mesh) {
	f(pos, m)
}

// NopSink discards every mesh.
type NopSink struct{}

// HandleMesh ...
func (NopSink) HandleMesh(cube.ChunkPos, *Mesh) {}

// Config holds the settings of a Scheduler. The zero value is usable;
// defaults are applied by New.
type Config struct {
	// Log is the Logger used for debug messages. If nil, slog.Default() is
	// used.
	Log *slog.Logger
	// Workers is the number of meshes built at the same time. Values of 0 or
	// below result in runtime.NumCPU() workers.
	Workers int
	// Interval is the time between two ticks of Run. It defaults to 50ms.
	Interval time.Duration
	// Options are passed to Build.
	Options Options
	// Policy handles chunks with neighbours that are not loaded.
	Policy Policy
	// Metrics, if not nil, is updated for every chunk handled.
	Metrics *Metrics
	// Sink receives the meshes built. If nil, NopSink is used.
	Sink Sink
	// Collide reports whether the Colliders of a chunk are built along with
	// its mesh. If nil, no colliders are built.
	Collide func(pos cube.ChunkPos) bool
}

func (c Config) withDefaults() Config {
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Interval <= 0 {
		c.Interval = time.Second / 20
	}
	if c.Sink == nil {
		c.Sink = NopSink{}
	}
	return c
}

// Scheduler rebuilds the meshes of the dirty chunks of a World. Edits made to
// a chunk between two ticks result in a single rebuild.
type Scheduler struct {
	conf Config
	w    *world.World
	pool pond.Pool

	tickMu sync.Mutex
}

// New creates a Scheduler for the World passed. Close must be called to stop
// its workers.
func (c Config) New(w *world.World) *Scheduler {
	c = c.withDefaults()
	return &Scheduler{conf: c, w: w, pool: pond.NewPool(c.Workers)}
}

// Metrics returns the Metrics of the Scheduler, which may be nil.
func (s *Scheduler) Metrics() *Metrics {
	return s.conf.Metrics
}

// Tick takes the chunks that became dirty since the previous tick and
// rebuilds their meshes on the worker pool. It blocks until all meshes are
// delivered to the Sink and returns how many were delivered. A mesh is not
// delivered if its chunk became dirty again while it was built; the chunk is
// then rebuilt on a later tick. Nothing is taken from the World if ctx is
// already done.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	var delivered atomic.Int64
	group := s.pool.NewGroup()
	for _, pos := range s.w.DirtyChunks() {
		c, ok := s.w.ChunkIfLoaded(pos)
		if !ok {
			continue
		}
		neighbours, ok := s.neighbours(pos)
		if !ok {
			s.conf.Metrics.IncDeferred(pos)
			continue
		}
		group.Submit(func() {
			if s.rebuild(pos, c, neighbours) {
				delivered.Add(1)
			}
		})
	}
	err := group.Wait()
	return int(delivered.Load()), err
}

// neighbours returns the chunks around pos that are loaded. False is returned
// if the Policy requires all of them and one is missing.
func (s *Scheduler) neighbours(pos cube.ChunkPos) ([6]*chunk.Chunk, bool) {
	var n [6]*chunk.Chunk
	bounds := s.w.Bounds()
	for _, f := range cube.Faces() {
		npos := pos.Side(f)
		c, ok := s.w.ChunkIfLoaded(npos)
		if !ok && s.conf.Policy == DeferUntilNeighbours && bounds.Contains(npos) {
			return n, false
		}
		n[f] = c
	}
	return n, true
}

// rebuild builds and delivers the mesh of chunk c at pos. It reports whether
// the mesh was delivered.
func (s *Scheduler) rebuild(pos cube.ChunkPos, c *chunk.Chunk, around [6]*chunk.Chunk) bool {
	snap := c.SnapshotClean()
	n := borders(around)
	m := Build(snap, n, s.conf.Options)
	m.Chunk = pos
	if s.conf.Collide != nil && s.conf.Collide(pos) {
		m.Colliders = Colliders(snap, n)
	}
	if c.Dirty() {
		s.conf.Metrics.IncStale(pos)
		return false
	}
	s.conf.Metrics.IncBuilds(pos, m.FaceCount())
	s.conf.Sink.HandleMesh(pos, m)
	return true
}

// borders returns the border layers of the chunks passed that face the chunk
// they surround.
func borders(around [6]*chunk.Chunk) Neighbours {
	var n Neighbours
	for _, f := range cube.Faces() {
		if around[f] != nil {
			n[f] = around[f].Border(f.Opposite())
		}
	}
	return n
}

// Colliders builds the collision boxes of the loaded chunk at pos from its
// current bricks, treating neighbours that are not loaded as air. False is
// returned if the chunk is not loaded.
func (s *Scheduler) Colliders(pos cube.ChunkPos) ([]Box, bool) {
	c, ok := s.w.ChunkIfLoaded(pos)
	if !ok {
		return nil, false
	}
	var around [6]*chunk.Chunk
	for _, f := range cube.Faces() {
		around[f], _ = s.w.ChunkIfLoaded(pos.Side(f))
	}
	return Colliders(c.Snapshot(), borders(around)), true
}

// Run ticks the Scheduler at the configured interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.conf.Interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if n, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.conf.Log.Error("mesh tick: " + err.Error())
			} else if n > 0 {
				s.conf.Log.Debug("Rebuilt chunk meshes.", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the workers of the Scheduler, waiting for running builds.
func (s *Scheduler) Close() {
	s.pool.StopAndWait()
}
