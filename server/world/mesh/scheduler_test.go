package mesh_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world"
	"github.com/brickgame/brickworld/server/world/generator"
	"github.com/brickgame/brickworld/server/world/mesh"
)

type recordingSink struct {
	mu     sync.Mutex
	meshes map[cube.ChunkPos][]*mesh.Mesh
}

func (s *recordingSink) HandleMesh(pos cube.ChunkPos, m *mesh.Mesh) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meshes == nil {
		s.meshes = make(map[cube.ChunkPos][]*mesh.Mesh)
	}
	s.meshes[pos] = append(s.meshes[pos], m)
}

func (s *recordingSink) last(pos cube.ChunkPos) (*mesh.Mesh, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.meshes[pos]
	if len(ms) == 0 {
		return nil, 0
	}
	return ms[len(ms)-1], len(ms)
}

func newScheduler(t *testing.T, wconf world.Config, conf mesh.Config) (*world.World, *mesh.Scheduler, *recordingSink) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	wconf.Log, wconf.SaveInterval = log, -1
	wconf.Generator = generator.NewFlat(0, brick.Bedrock, brick.Rock, brick.Rock, brick.Dirt, brick.Grass)
	w, err := wconf.New()
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	sink := &recordingSink{}
	conf.Log, conf.Sink, conf.Workers = log, sink, 2
	if conf.Metrics == nil {
		conf.Metrics = mesh.NewMetrics()
	}
	s := conf.New(w)
	t.Cleanup(func() {
		s.Close()
		if err := w.Close(); err != nil {
			t.Errorf("world close: %v", err)
		}
	})
	return w, s, sink
}

func tick(t *testing.T, s *mesh.Scheduler) int {
	t.Helper()
	n, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	return n
}

func TestSchedulerCoalescesEdits(t *testing.T) {
	t.Parallel()

	w, s, sink := newScheduler(t, world.Config{}, mesh.Config{})
	pos := cube.ChunkPos{}
	if _, err := w.Chunk(pos); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if n := tick(t, s); n != 1 {
		t.Fatalf("expected one mesh after loading, got %d", n)
	}

	for x := range 8 {
		if err := w.SetBrick(cube.Pos{x + 4, 7, 7}, brick.Glass); err != nil {
			t.Fatalf("set brick: %v", err)
		}
	}
	if n := tick(t, s); n != 1 {
		t.Fatalf("expected eight edits to result in one rebuild, got %d", n)
	}
	if _, count := sink.last(pos); count != 2 {
		t.Fatalf("expected two meshes delivered, got %d", count)
	}
	if n := tick(t, s); n != 0 {
		t.Fatalf("expected nothing to rebuild, got %d", n)
	}
	if b := s.Metrics().Chunk(pos).Builds; b != 2 {
		t.Fatalf("expected 2 builds in metrics, got %d", b)
	}
}

func TestSchedulerRemeshesSeams(t *testing.T) {
	t.Parallel()

	w, s, sink := newScheduler(t, world.Config{}, mesh.Config{})
	pos, east := cube.ChunkPos{}, cube.ChunkPos{1, 0, 0}
	if _, err := w.Chunk(pos); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	tick(t, s)
	before, _ := sink.last(pos)
	// Five layers of 16x16: top, bottom and four sides towards missing chunks.
	if want := 2*256 + 4*16*5; before.FaceCount() != want {
		t.Fatalf("expected %d faces, got %d", want, before.FaceCount())
	}

	if _, err := w.Chunk(east); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if n := tick(t, s); n != 2 {
		t.Fatalf("expected the new chunk and its neighbour rebuilt, got %d", n)
	}
	after, _ := sink.last(pos)
	if want := before.FaceCount() - 16*5; after.FaceCount() != want {
		t.Fatalf("expected the seam culled to %d faces, got %d", want, after.FaceCount())
	}
}

func TestSchedulerDefersUntilNeighbours(t *testing.T) {
	t.Parallel()

	w, s, sink := newScheduler(t, world.Config{}, mesh.Config{Policy: mesh.DeferUntilNeighbours})
	pos := cube.ChunkPos{}
	if _, err := w.Chunk(pos); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if n := tick(t, s); n != 0 {
		t.Fatalf("expected the rebuild deferred, got %d meshes", n)
	}
	if d := s.Metrics().Chunk(pos).Deferred; d != 1 {
		t.Fatalf("expected one deferred rebuild, got %d", d)
	}

	for _, f := range cube.Faces() {
		if _, err := w.Chunk(pos.Side(f)); err != nil {
			t.Fatalf("chunk: %v", err)
		}
	}
	tick(t, s)
	// The sides are culled by the neighbouring slabs. The chunk below is
	// empty, so the bottom stays visible along with the top.
	m, count := sink.last(pos)
	if count != 1 || m.FaceCount() != 2*256 {
		t.Fatalf("expected one mesh with the sides culled, got %d meshes", count)
	}
}

func TestSchedulerDeferRespectsBounds(t *testing.T) {
	t.Parallel()

	bounds := cube.NewBounds(cube.ChunkPos{}, cube.ChunkPos{})
	w, s, sink := newScheduler(t, world.Config{Bounds: bounds}, mesh.Config{Policy: mesh.DeferUntilNeighbours, Options: mesh.Options{Greedy: true}})
	if _, err := w.Chunk(cube.ChunkPos{}); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if n := tick(t, s); n != 1 {
		t.Fatalf("expected neighbours outside the bounds to be ignored, got %d meshes", n)
	}
	// Top and bottom merge into one face each. Every side has one face per
	// material layer.
	if m, _ := sink.last(cube.ChunkPos{}); m.FaceCount() != 2+4*4 {
		t.Fatalf("expected 18 merged faces, got %d", m.FaceCount())
	}
}

func TestSchedulerCancelledTick(t *testing.T) {
	t.Parallel()

	w, s, _ := newScheduler(t, world.Config{}, mesh.Config{})
	if _, err := w.Chunk(cube.ChunkPos{}); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Tick(ctx); err == nil {
		t.Fatal("expected error from cancelled tick")
	}
	if n := tick(t, s); n != 1 {
		t.Fatalf("expected the chunk to stay dirty after a cancelled tick, got %d meshes", n)
	}
}

func TestSchedulerBuildsColliders(t *testing.T) {
	t.Parallel()

	near, far := cube.ChunkPos{}, cube.ChunkPos{4, 0, 0}
	w, s, sink := newScheduler(t, world.Config{}, mesh.Config{
		Collide: func(pos cube.ChunkPos) bool { return pos == near },
	})
	for _, pos := range []cube.ChunkPos{near, far} {
		if _, err := w.Chunk(pos); err != nil {
			t.Fatalf("chunk %v: %v", pos, err)
		}
	}
	if n := tick(t, s); n != 2 {
		t.Fatalf("expected 2 meshes, got %d", n)
	}
	if m, _ := sink.last(near); len(m.Colliders) == 0 {
		t.Fatal("expected colliders for the chunk in collision range")
	}
	if m, _ := sink.last(far); m.Colliders != nil {
		t.Fatalf("expected no colliders outside collision range, got %d", len(m.Colliders))
	}

	boxes, ok := s.Colliders(far)
	if !ok || len(boxes) == 0 {
		t.Fatal("expected colliders built on demand for a loaded chunk")
	}
	if _, ok := s.Colliders(cube.ChunkPos{9, 9, 9}); ok {
		t.Fatal("expected no colliders for a chunk that is not loaded")
	}
}
