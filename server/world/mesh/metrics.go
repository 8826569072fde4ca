package mesh

import (
	"sync"

	"github.com/brickgame/brickworld/server/brick/cube"
)

// Metrics tracks per-chunk meshing counters for observability. A nil
// *Metrics discards everything.
type Metrics struct {
	mu sync.Mutex

	builds   map[cube.ChunkPos]uint64
	stale    map[cube.ChunkPos]uint64
	deferred map[cube.ChunkPos]uint64
	faces    map[cube.ChunkPos]int
}

// ChunkMetrics holds the counters of a single chunk.
type ChunkMetrics struct {
	// Builds is the number of meshes delivered for the chunk.
	Builds uint64
	// Stale is the number of meshes dropped because the chunk changed again
	// while they were built.
	Stale uint64
	// Deferred is the number of rebuilds postponed until the neighbours of
	// the chunk were loaded.
	Deferred uint64
	// Faces is the face count of the last mesh delivered.
	Faces int
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{
		builds:   make(map[cube.ChunkPos]uint64),
		stale:    make(map[cube.ChunkPos]uint64),
		deferred: make(map[cube.ChunkPos]uint64),
		faces:    make(map[cube.ChunkPos]int),
	}
}

// IncBuilds increments the build counter for a chunk and stores the face
// count of the mesh built.
func (m *Metrics) IncBuilds(pos cube.ChunkPos, faces int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.builds[pos]++
	m.faces[pos] = faces
	m.mu.Unlock()
}

// IncStale increments the stale mesh counter for a chunk.
func (m *Metrics) IncStale(pos cube.ChunkPos) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.stale[pos]++
	m.mu.Unlock()
}

// IncDeferred increments the deferred rebuild counter for a chunk.
func (m *Metrics) IncDeferred(pos cube.ChunkPos) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.deferred[pos]++
	m.mu.Unlock()
}

// Chunk returns the counters of the chunk at pos.
func (m *Metrics) Chunk(pos cube.ChunkPos) ChunkMetrics {
	if m == nil {
		return ChunkMetrics{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return ChunkMetrics{
		Builds:   m.builds[pos],
		Stale:    m.stale[pos],
		Deferred: m.deferred[pos],
		Faces:    m.faces[pos],
	}
}

// Total returns the sum of the counters of all chunks. Faces holds the sum of
// the face counts of the last mesh of each chunk.
func (m *Metrics) Total() ChunkMetrics {
	if m == nil {
		return ChunkMetrics{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var t ChunkMetrics
	for _, v := range m.builds {
		t.Builds += v
	}
	for _, v := range m.stale {
		t.Stale += v
	}
	for _, v := range m.deferred {
		t.Deferred += v
	}
	for _, v := range m.faces {
		t.Faces += v
	}
	return t
}

// Forget removes the counters of the chunk at pos, usually after it was
// evicted.
func (m *Metrics) Forget(pos cube.ChunkPos) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.builds, pos)
	delete(m.stale, pos)
	delete(m.deferred, pos)
	delete(m.faces, pos)
	m.mu.Unlock()
}
