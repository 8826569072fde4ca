// Package server runs a brick world: it owns the world, rebuilds the meshes
// of changed chunks and keeps the loaded area around a focus point.
package server

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world"
	"github.com/brickgame/brickworld/server/world/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// Server implements a brick world server. It is created using Config.New.
type Server struct {
	conf  Config
	world *world.World
	mesh  *mesh.Scheduler

	focusMu sync.Mutex
	focus   mgl64.Vec3

	collideMu sync.RWMutex
	colliders map[cube.ChunkPos][]mesh.Box

	once     sync.Once
	closeErr error
}

// World returns the world of the server.
func (srv *Server) World() *world.World {
	return srv.world
}

// Mesh returns the mesh scheduler of the server.
func (srv *Server) Mesh() *mesh.Scheduler {
	return srv.mesh
}

// SetFocus moves the point around which chunks are kept loaded.
func (srv *Server) SetFocus(pos mgl64.Vec3) {
	srv.focusMu.Lock()
	defer srv.focusMu.Unlock()
	srv.focus = pos
}

// Focus returns the point around which chunks are kept loaded.
func (srv *Server) Focus() mgl64.Vec3 {
	srv.focusMu.Lock()
	defer srv.focusMu.Unlock()
	return srv.focus
}

// Run rebuilds chunk meshes and refreshes the focus area until ctx is done,
// after which the Server is closed.
func (srv *Server) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.mesh.Run(ctx)
	}()
	if srv.conf.FocusRadius > 0 || srv.conf.CollisionRadius > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.runFocus(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return srv.Close()
}

// runFocus refreshes the focus area of the world at the configured interval.
func (srv *Server) runFocus(ctx context.Context) {
	t := time.NewTicker(srv.conf.FocusInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if srv.conf.FocusRadius > 0 {
				err := srv.world.Focus(ctx, srv.Focus(), srv.conf.FocusRadius)
				if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, world.ErrClosed) {
					srv.conf.Log.Error("focus world: " + err.Error())
				}
			}
			srv.refreshColliders()
		case <-ctx.Done():
			return
		}
	}
}

// Colliders returns the collision boxes of the chunk at pos, in chunk-local
// coordinates. Only chunks within the collision radius of the focus point
// have colliders.
func (srv *Server) Colliders(pos cube.ChunkPos) []mesh.Box {
	srv.collideMu.RLock()
	defer srv.collideMu.RUnlock()
	return srv.colliders[pos]
}

// collides reports whether the chunk at pos lies within the collision radius
// of the focus point, measured to the nearest point of the chunk.
func (srv *Server) collides(pos cube.ChunkPos) bool {
	if srv.conf.CollisionRadius <= 0 {
		return false
	}
	focus, o := srv.Focus(), pos.Origin()
	var d mgl64.Vec3
	for i := range 3 {
		lo := float64(o[i])
		d[i] = focus[i] - max(lo, min(focus[i], lo+cube.ChunkSize))
	}
	return d.Len() <= srv.conf.CollisionRadius
}

func (srv *Server) setColliders(pos cube.ChunkPos, boxes []mesh.Box) {
	srv.collideMu.Lock()
	defer srv.collideMu.Unlock()
	srv.colliders[pos] = boxes
}

func (srv *Server) forgetColliders(pos cube.ChunkPos) {
	srv.collideMu.Lock()
	defer srv.collideMu.Unlock()
	delete(srv.colliders, pos)
}

// refreshColliders drops the colliders of chunks that left the collision
// radius and builds them for loaded chunks that entered it. Chunks already
// holding colliders are kept up to date by the meshes built for them.
func (srv *Server) refreshColliders() {
	srv.collideMu.Lock()
	for pos := range srv.colliders {
		if !srv.collides(pos) {
			delete(srv.colliders, pos)
		}
	}
	srv.collideMu.Unlock()
	if srv.conf.CollisionRadius <= 0 {
		return
	}

	centre := cube.PosFromVec3(srv.Focus())
	if !centre.ChunkInRange() {
		return
	}
	base := centre.Chunk()
	n := int32(math.Ceil(srv.conf.CollisionRadius/cube.ChunkSize)) + 1
	for dz := -n; dz <= n; dz++ {
		for dy := -n; dy <= n; dy++ {
			for dx := -n; dx <= n; dx++ {
				pos := cube.ChunkPos{base[0] + dx, base[1] + dy, base[2] + dz}
				if !srv.collides(pos) {
					continue
				}
				srv.collideMu.RLock()
				_, ok := srv.colliders[pos]
				srv.collideMu.RUnlock()
				if ok {
					continue
				}
				if boxes, ok := srv.mesh.Colliders(pos); ok {
					srv.collideMu.Lock()
					if _, ok := srv.colliders[pos]; !ok {
						srv.colliders[pos] = boxes
					}
					srv.collideMu.Unlock()
				}
			}
		}
	}
}

// Close stops the mesh workers and closes the world, saving all modified
// chunks. Calling Close more than once returns the result of the first call.
func (srv *Server) Close() error {
	srv.once.Do(func() {
		srv.conf.Log.Info("Closing world...")
		srv.mesh.Close()
		srv.closeErr = srv.world.Close()
	})
	return srv.closeErr
}
