package server

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world"
	"github.com/brickgame/brickworld/server/world/brickdb"
	"github.com/brickgame/brickworld/server/world/generator"
	"github.com/brickgame/brickworld/server/world/mesh"
	"github.com/brickgame/brickworld/server/world/save"
	"github.com/brickgame/brickworld/server/world/sqlitedb"
)

// Config contains options for starting a brick world server.
type Config struct {
	// Log is the Logger to use for logging information. If nil, Log is set to
	// slog.Default().
	Log *slog.Logger
	// World holds the configuration of the world of the server. Its Log and
	// Handler are set by New if left empty.
	World world.Config
	// Mesh holds the configuration of the mesh scheduler of the server. If
	// Mesh.Metrics is nil, a new Metrics is created.
	Mesh mesh.Config
	// FocusRadius is the radius in bricks around the focus point within which
	// chunks are kept loaded. Chunks farther away are saved and evicted. Zero
	// or below disables eviction.
	FocusRadius float64
	// FocusInterval is how often the focus area is refreshed. It defaults to
	// one second.
	FocusInterval time.Duration
	// CollisionRadius is the distance in bricks from the focus point within
	// which the collision boxes of loaded chunks are kept up to date. Zero or
	// below disables collision.
	CollisionRadius float64
}

// New creates a Server using fields of conf. The world is opened straight
// away; meshing and focusing only start once Server.Run is called.
func (conf Config) New() (*Server, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.World.Log == nil {
		conf.World.Log = conf.Log
	}
	if conf.Mesh.Log == nil {
		conf.Mesh.Log = conf.Log
	}
	if conf.Mesh.Metrics == nil {
		conf.Mesh.Metrics = mesh.NewMetrics()
	}
	if conf.FocusInterval <= 0 {
		conf.FocusInterval = time.Second
	}
	srv := &Server{colliders: make(map[cube.ChunkPos][]mesh.Box)}
	if conf.World.Handler == nil {
		conf.World.Handler = worldHandler{srv: srv, metrics: conf.Mesh.Metrics}
	}
	conf.Mesh.Sink = collisionSink{srv: srv, next: conf.Mesh.Sink}
	if conf.Mesh.Collide == nil {
		conf.Mesh.Collide = srv.collides
	}
	srv.conf = conf
	w, err := conf.World.New()
	if err != nil {
		return nil, fmt.Errorf("create world: %w", err)
	}
	srv.world = w
	srv.mesh = conf.Mesh.New(w)
	conf.Log.Info("Opened world.", "name", w.Name(), "seed", w.Seed(), "id", w.Metadata().ID)
	return srv, nil
}

// worldHandler drops the mesh metrics and colliders of chunks that are
// evicted.
type worldHandler struct {
	world.NopHandler
	srv     *Server
	metrics *mesh.Metrics
}

// HandleChunkEvict ...
func (h worldHandler) HandleChunkEvict(pos cube.ChunkPos) {
	h.metrics.Forget(pos)
	h.srv.forgetColliders(pos)
}

// collisionSink keeps the colliders of the meshes built near the focus point
// before passing the meshes on.
type collisionSink struct {
	srv  *Server
	next mesh.Sink
}

// HandleMesh ...
func (s collisionSink) HandleMesh(pos cube.ChunkPos, m *mesh.Mesh) {
	if s.srv.collides(pos) && s.srv.world.Loaded(pos) {
		s.srv.setColliders(pos, m.Colliders)
	}
	if s.next != nil {
		s.next.HandleMesh(pos, m)
	}
}

// UserConfig is the user configuration for a brick world server. It holds
// settings that affect different aspects of the server, such as the world it
// serves and how it is stored. UserConfig may be serialised to TOML and
// overridden from the environment, and can be converted to a Config by
// calling UserConfig.Config().
type UserConfig struct {
	World struct {
		// Name is the name of a newly created world.
		Name string `env:"BRICK_WORLD_NAME"`
		// Seed controls the procedural generation of a newly created world.
		// Worlds that already exist keep the seed they were created with.
		Seed int64 `env:"BRICK_WORLD_SEED"`
		// Generator is the generator used for chunks that were never stored.
		// Valid values are "terrain", "flat" and "void".
		Generator string `env:"BRICK_WORLD_GENERATOR"`
		// ReadOnly prevents the world from being changed or saved.
		ReadOnly bool `env:"BRICK_WORLD_READ_ONLY"`
		// SaveIntervalSeconds is the time between two automatic saves. Set to 0
		// for the default of five minutes and below 0 to disable autosaving.
		SaveIntervalSeconds int `env:"BRICK_WORLD_SAVE_INTERVAL"`
		// GeneratorWorkers is the number of background workers that should be
		// dedicated to generating chunks. Set to 0 to automatically select a
		// reasonable default based on the host's CPU count.
		GeneratorWorkers int `env:"BRICK_GENERATOR_WORKERS"`
		// GeneratorQueueSize determines how many chunk generation jobs can wait
		// for a worker. Set to 0 to use an automatically chosen size.
		GeneratorQueueSize int `env:"BRICK_GENERATOR_QUEUE_SIZE"`
		// Bounds limits the world to the chunks between the minimum and
		// maximum chunk coordinates inclusive, if enabled.
		Bounds struct {
			Enabled              bool
			MinChunkX, MaxChunkX int32
			MinChunkY, MaxChunkY int32
			MinChunkZ, MaxChunkZ int32
		}
		// FlatLayers lists the bricks of the flat generator from the bottom up.
		FlatLayers []string
	}
	Provider struct {
		// Type selects how the world is stored. Valid values are "leveldb",
		// "sqlite" and "memory". A memory world is lost when the server stops.
		Type string `env:"BRICK_PROVIDER"`
		// Path is the directory of a LevelDB world or the file of a SQLite
		// world.
		Path string `env:"BRICK_PROVIDER_PATH"`
	}
	Mesh struct {
		// Greedy merges coplanar faces into larger rectangles.
		Greedy bool `env:"BRICK_MESH_GREEDY"`
		// Workers is the number of meshes built at the same time. Set to 0 to
		// use one worker per CPU.
		Workers int `env:"BRICK_MESH_WORKERS"`
		// DeferUntilNeighbours postpones meshing a chunk until all its
		// neighbours are loaded.
		DeferUntilNeighbours bool `env:"BRICK_MESH_DEFER"`
		// IntervalMillis is the time between two mesh rebuild rounds.
		IntervalMillis int `env:"BRICK_MESH_INTERVAL"`
	}
	Focus struct {
		// Radius is the distance in bricks around the focus point within which
		// chunks stay loaded. Set to 0 to keep every chunk loaded.
		Radius float64 `env:"BRICK_FOCUS_RADIUS"`
		// CollisionRadius is the distance in bricks around the focus point
		// within which collision boxes are built. Set to 0 to disable
		// collision.
		CollisionRadius float64 `env:"BRICK_FOCUS_COLLISION_RADIUS"`
	}
	// Terrain holds the parameters of the terrain generator.
	Terrain generator.Params
}

// Config converts a UserConfig to a Config, so that it may be used for
// creating a Server. An error is returned if the world provider could not be
// opened or the configuration holds invalid values.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	if log == nil {
		log = slog.Default()
	}
	conf := Config{
		Log: log,
		World: world.Config{
			Log:                log,
			Name:               uc.World.Name,
			Seed:               uc.World.Seed,
			ReadOnly:           uc.World.ReadOnly,
			SaveInterval:       time.Duration(uc.World.SaveIntervalSeconds) * time.Second,
			GeneratorWorkers:   uc.World.GeneratorWorkers,
			GeneratorQueueSize: uc.World.GeneratorQueueSize,
		},
		Mesh: mesh.Config{
			Log:      log,
			Workers:  uc.Mesh.Workers,
			Interval: time.Duration(uc.Mesh.IntervalMillis) * time.Millisecond,
			Options:  mesh.Options{Greedy: uc.Mesh.Greedy},
		},
		FocusRadius:     uc.Focus.Radius,
		CollisionRadius: uc.Focus.CollisionRadius,
	}
	if uc.World.SaveIntervalSeconds < 0 {
		conf.World.SaveInterval = -1
	}
	if b := uc.World.Bounds; b.Enabled {
		conf.World.Bounds = cube.NewBounds(
			cube.ChunkPos{b.MinChunkX, b.MinChunkY, b.MinChunkZ},
			cube.ChunkPos{b.MaxChunkX, b.MaxChunkY, b.MaxChunkZ},
		)
	}
	if uc.Mesh.DeferUntilNeighbours {
		conf.Mesh.Policy = mesh.DeferUntilNeighbours
	}

	p, err := uc.provider(log)
	if err != nil {
		return conf, fmt.Errorf("create world provider: %w", err)
	}
	conf.World.Provider = p

	// An existing world keeps its seed, so the generator must be seeded from
	// the stored metadata.
	seed := uc.World.Seed
	if meta, err := p.Metadata(); err == nil {
		seed = meta.Seed
	} else if !errors.Is(err, save.ErrNotFound) {
		_ = p.Close()
		return conf, fmt.Errorf("read world metadata: %w", err)
	}
	name := strings.ToLower(strings.TrimSpace(uc.World.Generator))
	if conf.World.Generator, err = uc.generator(name, seed); err != nil {
		_ = p.Close()
		return conf, err
	}
	conf.World.GeneratorName = name
	return conf, nil
}

// provider opens the world.Provider selected by the UserConfig.
func (uc UserConfig) provider(log *slog.Logger) (world.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(uc.Provider.Type)) {
	case "", "leveldb":
		return brickdb.Config{Log: log, ReadOnly: uc.World.ReadOnly}.Open(uc.Provider.Path)
	case "sqlite":
		return sqlitedb.Config{Log: log}.Open(filepath.Clean(uc.Provider.Path))
	case "memory":
		return save.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown provider type %q", uc.Provider.Type)
}

// generator returns the world.Generator with the name passed.
func (uc UserConfig) generator(name string, seed int64) (world.Generator, error) {
	switch name {
	case "", "terrain":
		return generator.NewTerrain(seed, uc.Terrain), nil
	case "flat":
		layers := make([]brick.ID, 0, len(uc.World.FlatLayers))
		for _, n := range uc.World.FlatLayers {
			id, ok := brick.ByName(n)
			if !ok {
				return nil, fmt.Errorf("flat generator: unknown brick %q", n)
			}
			layers = append(layers, id)
		}
		return generator.NewFlat(0, layers...), nil
	case "void":
		return world.NopGenerator{}, nil
	}
	return nil, fmt.Errorf("unknown generator %q", name)
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.World.Name = "World"
	c.World.Generator = "terrain"
	c.World.FlatLayers = []string{"bedrock", "rock", "rock", "dirt", "grass"}
	c.Provider.Type = "leveldb"
	c.Provider.Path = "world"
	c.Mesh.Greedy = true
	c.Mesh.IntervalMillis = 50
	c.Focus.Radius = 256
	c.Focus.CollisionRadius = 32
	c.Terrain = generator.DefaultParams()
	return c
}
