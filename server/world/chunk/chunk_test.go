package chunk

import (
	"slices"
	"sync"
	"testing"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
)

func TestSetBrickFlags(t *testing.T) {
	t.Parallel()

	c := New()
	if c.Dirty() || c.Modified() || c.Generated() {
		t.Fatal("new chunk should have no flags set")
	}
	c.MarkGenerated()
	if !c.Dirty() || c.Modified() || !c.Generated() {
		t.Fatal("generated chunk should be dirty and unmodified")
	}
	_ = c.SnapshotClean()
	if c.Dirty() {
		t.Fatal("clean snapshot should clear dirty flag")
	}

	rev := c.Revision()
	if prev := c.SetBrick(1, 2, 3, brick.Rock); prev != brick.Air {
		t.Fatalf("expected air before set, got %v", prev)
	}
	if c.Revision() != rev+1 {
		t.Fatalf("expected revision %d, got %d", rev+1, c.Revision())
	}
	if !c.Dirty() || !c.Modified() {
		t.Fatal("edited chunk should be dirty and modified")
	}
	if got := c.Brick(1, 2, 3); got != brick.Rock {
		t.Fatalf("expected rock, got %v", got)
	}
	if c.MarkSaved(rev) {
		t.Fatal("saving an older revision should not clear modified")
	}
	if !c.MarkSaved(c.Revision()) || c.Modified() {
		t.Fatal("saving the current revision should clear modified")
	}
}

func TestHighest(t *testing.T) {
	t.Parallel()

	c := New()
	if h := c.Highest(4, 4); h != -1 {
		t.Fatalf("expected -1 for empty column, got %d", h)
	}
	c.SetBrick(4, 4, 2, brick.Dirt)
	c.SetBrick(4, 4, 9, brick.Grass)
	if h := c.Highest(4, 4); h != 9 {
		t.Fatalf("expected 9, got %d", h)
	}
	c.SetBrick(4, 4, 9, brick.Air)
	if h := c.Highest(4, 4); h != 2 {
		t.Fatalf("expected 2 after removing top, got %d", h)
	}
	c.SetBrick(4, 4, 2, brick.Air)
	if h := c.Highest(4, 4); h != -1 || !c.Empty() {
		t.Fatalf("expected empty column, got %d", h)
	}
}

func TestFromBricksCopies(t *testing.T) {
	t.Parallel()

	bricks := make([]brick.ID, Volume)
	bricks[Index(0, 0, 15)] = brick.Rock
	c := FromBricks(bricks)
	bricks[Index(0, 0, 15)] = brick.Air

	if c.Brick(0, 0, 15) != brick.Rock {
		t.Fatal("chunk should not share storage with the input slice")
	}
	if c.Highest(0, 0) != 15 || c.Empty() {
		t.Fatal("heights not computed from bricks")
	}
	snap := c.Snapshot()
	c.SetBrick(0, 0, 15, brick.Air)
	if snap.At(0, 0, 15) != brick.Rock {
		t.Fatal("snapshot should not share storage with the chunk")
	}
}

func TestBorder(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetBrick(Size-1, 3, 7, brick.Rock)
	c.SetBrick(5, 0, 2, brick.Dirt)
	c.SetBrick(8, 9, Size-1, brick.Grass)

	if b := c.Border(cube.FaceEast); b[LayerIndex(cube.FaceEast, Size-1, 3, 7)] != brick.Rock {
		t.Fatal("east border missing rock")
	}
	if b := c.Border(cube.FaceNorth); b[LayerIndex(cube.FaceNorth, 5, 0, 2)] != brick.Dirt {
		t.Fatal("north border missing dirt")
	}
	if b := c.Border(cube.FaceUp); b[LayerIndex(cube.FaceUp, 8, 9, Size-1)] != brick.Grass {
		t.Fatal("up border missing grass")
	}
	if b := c.Border(cube.FaceWest); slices.ContainsFunc(b, func(id brick.ID) bool { return id != brick.Air }) {
		t.Fatal("west border should be all air")
	}
}

func TestOnBorder(t *testing.T) {
	t.Parallel()

	if f := OnBorder(5, 5, 5); len(f) != 0 {
		t.Fatalf("interior brick touches %v", f)
	}
	f := OnBorder(0, Size-1, 3)
	if !slices.Equal(f, []cube.Face{cube.FaceWest, cube.FaceSouth}) {
		t.Fatalf("expected west and south, got %v", f)
	}
	if f := OnBorder(Size-1, 0, 0); len(f) != 3 {
		t.Fatalf("corner brick should touch three faces, got %v", f)
	}
}

func TestConcurrentSetBrick(t *testing.T) {
	t.Parallel()

	c := New()
	var wg sync.WaitGroup
	for z := range uint8(Size) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range uint8(Size) {
				for x := range uint8(Size) {
					c.SetBrick(x, y, z, brick.Rock)
				}
			}
		}()
	}
	wg.Wait()
	if c.Revision() != Volume {
		t.Fatalf("expected %d revisions, got %d", Volume, c.Revision())
	}
	for _, b := range c.Snapshot().Bricks {
		if b != brick.Rock {
			t.Fatalf("lost update: %v", b)
		}
	}
}
