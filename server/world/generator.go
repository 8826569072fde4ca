package world

import (
	"errors"
	"fmt"
	"time"

	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/brickgame/brickworld/server/world/save"
)

// Generator handles the generation of chunks of a World. GenerateChunk may be
// called concurrently for different positions.
type Generator interface {
	// GenerateChunk generates a chunk at a chunk position passed. The generator
	// sets bricks in the chunk that is passed to the method.
	GenerateChunk(pos cube.ChunkPos, c *chunk.Chunk)
}

// NopGenerator is the default generator a world. It places no bricks in the
// world which results in a void world.
type NopGenerator struct{}

// GenerateChunk ...
func (NopGenerator) GenerateChunk(cube.ChunkPos, *chunk.Chunk) {}

type generationTask struct {
	pos cube.ChunkPos
	col *Column
}

// generateChunkAsync schedules loading of the chunk at pos on the generator
// workers. If the World is closing, the column is marked ready straight away
// so that waiters do not block. If the queue is full, the task is enqueued
// from a new goroutine and the backpressure is recorded.
func (w *World) generateChunkAsync(pos cube.ChunkPos, col *Column) {
	task := generationTask{pos: pos, col: col}

	w.queueMu.RLock()
	defer w.queueMu.RUnlock()
	if w.queueClosed {
		col.err = ErrClosed
		col.markReady()
		return
	}
	select {
	case w.generatorQueue <- task:
	default:
		w.pending.Add(1)
		go w.enqueueGeneration(task)
		w.handleGeneratorBackpressure()
	}
}

// enqueueGeneration blocks until the task is accepted by the queue or the
// World closes.
func (w *World) enqueueGeneration(task generationTask) {
	defer w.pending.Done()
	select {
	case <-w.closing:
		task.col.err = ErrClosed
		task.col.markReady()
	case w.generatorQueue <- task:
	}
}

// generatorWorker processes tasks from the generator queue until the World
// closes, after which remaining tasks are drained.
func (w *World) generatorWorker() {
	defer w.running.Done()

	for {
		select {
		case task := <-w.generatorQueue:
			w.runGenerationTask(task)
		case <-w.closing:
			w.drainGenerationQueue()
			return
		}
	}
}

// runGenerationTask loads the chunk of the task from the Provider, or
// generates it if it is not stored or is corrupt. The column is always marked
// ready, even if the generator panics. Dirty marking of the chunk and its
// neighbours is complete by the time waiters are released.
func (w *World) runGenerationTask(task generationTask) {
	generated := false
	defer func() {
		if r := recover(); r != nil {
			w.conf.Log.Error(
				"generate chunk: panic",
				"error", fmt.Sprint(r),
				"X", task.pos[0],
				"Y", task.pos[1],
				"Z", task.pos[2],
			)
			task.col.err = fmt.Errorf("%w: chunk %v: %v", ErrGenerationFailure, task.pos, r)
		}
		defer task.col.markReady()
		if task.col.err == nil {
			w.chunkLoaded(task.pos, task.col, generated)
		}
	}()

	c, err := w.conf.Provider.LoadChunk(task.pos)
	switch {
	case err == nil:
		task.col.Chunk = c
		w.loadedFromProvider.Add(1)
	case errors.Is(err, save.ErrNotFound):
		w.conf.Generator.GenerateChunk(task.pos, task.col.Chunk)
		generated = true
		w.generated.Add(1)
	case errors.Is(err, save.ErrCorruptData):
		w.conf.Log.Warn("load chunk: "+err.Error()+"; regenerating", "X", task.pos[0], "Y", task.pos[1], "Z", task.pos[2])
		w.conf.Generator.GenerateChunk(task.pos, task.col.Chunk)
		generated = true
		w.generated.Add(1)
		w.regenerated.Add(1)
	default:
		w.conf.Log.Error("load chunk: "+err.Error(), "X", task.pos[0], "Y", task.pos[1], "Z", task.pos[2])
		task.col.err = fmt.Errorf("load chunk %v: %w", task.pos, err)
		return
	}
	task.col.MarkGenerated()
}

// drainGenerationQueue marks every column still waiting in the queue as
// ready without loading it.
func (w *World) drainGenerationQueue() {
	for {
		select {
		case task := <-w.generatorQueue:
			task.col.err = ErrClosed
			task.col.markReady()
		default:
			return
		}
	}
}

// handleGeneratorBackpressure increments backpressure counters and emits a
// throttled warning when the generator queue saturates.
func (w *World) handleGeneratorBackpressure() {
	count := w.generatorQueueSaturation.Add(1)
	now := uint64(time.Now().UnixNano())
	last := w.lastQueueSaturationLog.Load()

	if last != 0 && time.Duration(now-last) < time.Minute {
		return
	}
	if !w.lastQueueSaturationLog.CompareAndSwap(last, now) {
		return
	}

	w.conf.Log.Warn(
		"world generator queue saturated: chunk generation backlog detected.",
		"queued_tasks", count,
		"queue_size", cap(w.generatorQueue),
		"workers", w.conf.GeneratorWorkers,
	)
}
