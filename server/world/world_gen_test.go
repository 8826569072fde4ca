package world_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world"
	"github.com/brickgame/brickworld/server/world/generator"
)

// TestTerrainMassChunkGeneration ensures that the terrain generator can
// populate a large batch of chunks through a small generator queue without
// stalling. Every chunk is requested from its own goroutine.
func TestTerrainMassChunkGeneration(t *testing.T) {
	t.Parallel()

	w := newWorld(t, world.Config{
		Generator:          generator.NewTerrain(42, generator.DefaultParams()),
		GeneratorWorkers:   2,
		GeneratorQueueSize: 2,
	})

	radius := int32(6)
	positions := make([]cube.ChunkPos, 0, (radius*2+1)*(radius*2+1)*2)
	for x := -radius; x <= radius; x++ {
		for y := -radius; y <= radius; y++ {
			positions = append(positions, cube.ChunkPos{x, y, 0}, cube.ChunkPos{x, y, -1})
		}
	}

	errCh := make(chan error, len(positions))
	var wg sync.WaitGroup
	for _, pos := range positions {
		wg.Add(1)
		go func() {
			defer wg.Done()

			done := make(chan error, 1)
			go func() {
				_, err := w.Brick(pos.Origin())
				done <- err
			}()

			timer := time.NewTimer(10 * time.Second)
			defer timer.Stop()

			select {
			case err := <-done:
				if err != nil {
					errCh <- fmt.Errorf("generate chunk at %v: %w", pos, err)
				}
			case <-timer.C:
				errCh <- fmt.Errorf("timeout generating chunk at %v", pos)
			}
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case err := <-errCh:
		t.Fatalf("mass chunk generation failed: %v", err)
	case <-finished:
	case <-time.After(30 * time.Second):
		t.Fatal("mass chunk generation timed out")
	}
	select {
	case err := <-errCh:
		t.Fatalf("mass chunk generation failed: %v", err)
	default:
	}

	if stats := w.Stats(); stats.Generated != uint64(len(positions)) || stats.Loaded != len(positions) {
		t.Fatalf("expected %d chunks generated and loaded, got %+v", len(positions), stats)
	}
}
