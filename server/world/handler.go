package world

import "github.com/brickgame/brickworld/server/brick/cube"

// Handler handles notifications about the chunks of a World. Methods may be
// called from multiple goroutines at once and must not block.
type Handler interface {
	// HandleChunkLoad is called when a chunk becomes available, either after
	// generation or after it was read from the Provider.
	HandleChunkLoad(pos cube.ChunkPos, generated bool)
	// HandleChunkDirty is called when the mesh of a chunk becomes stale.
	HandleChunkDirty(pos cube.ChunkPos)
	// HandleChunkEvict is called after a chunk was removed from the World.
	HandleChunkEvict(pos cube.ChunkPos)
	// HandleClose is called when the World is closed, before the final save.
	HandleClose()
}

// Compile time check to make sure NopHandler implements Handler.
var _ Handler = NopHandler{}

// NopHandler implements the Handler interface but does not execute any code
// when an event is called. The default Handler of worlds is set to
// NopHandler.
type NopHandler struct{}

func (NopHandler) HandleChunkLoad(cube.ChunkPos, bool) {}
func (NopHandler) HandleChunkDirty(cube.ChunkPos) {}
func (NopHandler) HandleChunkEvict(cube.ChunkPos) {}
func (NopHandler) HandleClose() {}
