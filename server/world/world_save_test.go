package world_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/brickgame/brickworld/server/world/generator"
	"github.com/brickgame/brickworld/server/world/save"
)

// lowTerrain returns terrain parameters that keep the ground below Z=14 and
// put bedrock at Z=0.
func lowTerrain() generator.Params {
	p := generator.DefaultParams()
	p.Floor = 0
	p.UnerodedHeight.Min, p.UnerodedHeight.Max = 0, 8
	p.ErodedHeight.Min, p.ErodedHeight.Max = 0, 4
	return p
}

type loadEvent struct {
	pos       cube.ChunkPos
	generated bool
}

type recordingHandler struct {
	world.NopHandler
	mu    sync.Mutex
	loads []loadEvent
}

func (h *recordingHandler) HandleChunkLoad(pos cube.ChunkPos, generated bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loads = append(h.loads, loadEvent{pos: pos, generated: generated})
}

func (h *recordingHandler) events() []loadEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.loads)
}

func TestSaveAndReopen(t *testing.T) {
	t.Parallel()

	const seed = 42
	mem := save.NewMemory()
	pos := cube.ChunkPos{}

	w, err := world.Config{
		Log:          discard,
		Seed:         seed,
		SaveInterval: -1,
		Provider:     mem,
		Generator:    generator.NewTerrain(seed, lowTerrain()),
	}.New()
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	for x := range 5 {
		if b, _ := w.Brick(cube.Pos{x, 2, 15}); b != brick.Air {
			t.Fatalf("expected air at z=15 before editing, got %v", b)
		}
		if b, _ := w.Brick(cube.Pos{x, 3, 0}); b != brick.Bedrock {
			t.Fatalf("expected bedrock at z=0 before editing, got %v", b)
		}
		if err := w.SetBrick(cube.Pos{x, 2, 15}, brick.Rock); err != nil {
			t.Fatalf("set brick: %v", err)
		}
		if err := w.SetBrick(cube.Pos{x, 3, 0}, brick.Air); err != nil {
			t.Fatalf("set brick: %v", err)
		}
	}
	c, err := w.Chunk(pos)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	before := c.Snapshot().Bricks
	if err := w.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if c.Modified() {
		t.Fatal("chunk should not be modified after saving")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	h := &recordingHandler{}
	gen := &countingGenerator{gen: generator.NewTerrain(seed, lowTerrain())}
	reopened := newWorld(t, world.Config{Provider: mem, Generator: gen, Handler: h})
	if reopened.Seed() != seed {
		t.Fatalf("expected seed %d, got %d", seed, reopened.Seed())
	}
	c, err = reopened.Chunk(pos)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if !slices.Equal(c.Snapshot().Bricks, before) {
		t.Fatal("reopened chunk differs from the saved chunk")
	}
	stats := reopened.Stats()
	if stats.FromProvider != 1 || stats.Generated != 0 || gen.calls.Load() != 0 {
		t.Fatalf("expected the chunk to be read from the provider, got %+v", stats)
	}
	if got := h.events(); !slices.Equal(got, []loadEvent{{pos: pos, generated: false}}) {
		t.Fatalf("expected one non-generated load event, got %v", got)
	}
}

func TestSaveStoresModifiedChunks(t *testing.T) {
	t.Parallel()

	mem := save.NewMemory()
	w := newWorld(t, world.Config{Provider: mem, Generator: flat})
	for x := range int32(3) {
		if _, err := w.Chunk(cube.ChunkPos{x, 0, 0}); err != nil {
			t.Fatalf("chunk: %v", err)
		}
	}
	if err := w.SetBrick(cube.Pos{20, 4, 9}, brick.Water); err != nil {
		t.Fatalf("set brick: %v", err)
	}
	if err := w.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if mem.Len() != 1 || w.Stats().Saved != 1 {
		t.Fatalf("expected one chunk saved, got %d stored and %d saved", mem.Len(), w.Stats().Saved)
	}
	if _, err := mem.LoadChunk(cube.ChunkPos{1, 0, 0}); err != nil {
		t.Fatalf("expected modified chunk stored: %v", err)
	}

	// Saving again without changes stores nothing.
	if err := w.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if w.Stats().Saved != 1 {
		t.Fatalf("expected no further chunks saved, got %d", w.Stats().Saved)
	}
}

func TestSaveCancelled(t *testing.T) {
	t.Parallel()

	mem := save.NewMemory()
	w := newWorld(t, world.Config{Provider: mem, Generator: flat})
	if err := w.SetBrick(cube.Pos{1, 1, 1}, brick.Glass); err != nil {
		t.Fatalf("set brick: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Save(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mem.Len() != 0 {
		t.Fatalf("expected nothing stored, got %d chunks", mem.Len())
	}
	if c, _ := w.ChunkIfLoaded(cube.ChunkPos{}); !c.Modified() {
		t.Fatal("chunk should still be modified")
	}
}

func TestCloseSaves(t *testing.T) {
	t.Parallel()

	mem := save.NewMemory()
	w, err := world.Config{Log: discard, Provider: mem, Generator: flat, SaveInterval: -1}.New()
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	if err := w.SetBrick(cube.Pos{-1, -1, 3}, brick.Sandstone); err != nil {
		t.Fatalf("set brick: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	c, err := mem.LoadChunk(cube.ChunkPos{-1, -1, 0})
	if err != nil {
		t.Fatalf("load chunk: %v", err)
	}
	if b := c.Brick(15, 15, 3); b != brick.Sandstone {
		t.Fatalf("expected sandstone in stored chunk, got %v", b)
	}
	if meta, err := mem.Metadata(); err != nil || meta.LastSaved.IsZero() {
		t.Fatalf("expected metadata with save time, got %+v (%v)", meta, err)
	}
}

func TestReadOnlyDoesNotSave(t *testing.T) {
	t.Parallel()

	mem := save.NewMemory()
	w := newWorld(t, world.Config{Provider: mem, Generator: flat, ReadOnly: true})
	if _, err := w.Chunk(cube.ChunkPos{}); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if err := w.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := mem.Metadata(); !errors.Is(err, save.ErrNotFound) {
		t.Fatalf("expected no metadata written, got %v", err)
	}
}

func TestCorruptChunkRegenerated(t *testing.T) {
	t.Parallel()

	mem := save.NewMemory()
	pos := cube.ChunkPos{4, 4, 0}
	if err := mem.StoreRecord(pos, []byte("not a chunk record")); err != nil {
		t.Fatalf("store record: %v", err)
	}
	gen := &countingGenerator{gen: flat}
	w := newWorld(t, world.Config{Provider: mem, Generator: gen})

	if b, err := w.Brick(pos.Origin()); err != nil || b != brick.Bedrock {
		t.Fatalf("expected regenerated bedrock, got %v (%v)", b, err)
	}
	if stats := w.Stats(); stats.Regenerated != 1 || stats.Generated != 1 {
		t.Fatalf("expected one regenerated chunk, got %+v", stats)
	}
}

func TestStoredSeedOverridesConfig(t *testing.T) {
	t.Parallel()

	mem := save.NewMemory()
	if err := mem.SaveMetadata(save.NewMetadata("Stored", 7, "flat")); err != nil {
		t.Fatalf("save metadata: %v", err)
	}
	w := newWorld(t, world.Config{Provider: mem, Seed: 99, Name: "Configured"})
	if w.Seed() != 7 || w.Name() != "Stored" {
		t.Fatalf("expected stored seed 7 and name Stored, got %d and %q", w.Seed(), w.Name())
	}
}

func TestMetadataVersionMismatch(t *testing.T) {
	t.Parallel()

	mem := save.NewMemory()
	meta := save.NewMetadata("Future", 1, "terrain")
	meta.FormatVersion = save.FormatVersion + 1
	if err := mem.SaveMetadata(meta); err != nil {
		t.Fatalf("save metadata: %v", err)
	}
	if _, err := (world.Config{Provider: mem, Log: discard}).New(); !errors.Is(err, save.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

// failingProvider fails to store the chunk at one position.
type failingProvider struct {
	*save.Memory
	fail cube.ChunkPos
}

var errDiskFull = errors.New("disk full")

func (p failingProvider) StoreChunk(pos cube.ChunkPos, snap chunk.Snapshot) error {
	if pos == p.fail {
		return errDiskFull
	}
	return p.Memory.StoreChunk(pos, snap)
}

func TestSaveJoinsErrors(t *testing.T) {
	t.Parallel()

	mem := save.NewMemory()
	bad := cube.ChunkPos{0, 0, 0}
	p := failingProvider{Memory: mem, fail: bad}
	w, err := world.Config{Log: discard, Provider: p, Generator: flat, SaveInterval: -1}.New()
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	t.Cleanup(func() {
		if err := w.Close(); !errors.Is(err, errDiskFull) {
			t.Errorf("expected close to report the failed chunk, got %v", err)
		}
	})

	for _, pos := range []cube.Pos{{1, 1, 1}, {40, 1, 1}} {
		if err := w.SetBrick(pos, brick.Glass); err != nil {
			t.Fatalf("set brick: %v", err)
		}
	}
	if err := w.Save(context.Background()); !errors.Is(err, errDiskFull) {
		t.Fatalf("expected errDiskFull, got %v", err)
	}
	if _, err := mem.LoadChunk(cube.ChunkPos{2, 0, 0}); err != nil {
		t.Fatalf("expected the other chunk stored: %v", err)
	}
	if c, _ := w.ChunkIfLoaded(bad); !c.Modified() {
		t.Fatal("chunk that failed to save should stay modified")
	}
}
