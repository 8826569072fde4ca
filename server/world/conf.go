package world

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/save"
)

// Config may be used to create a new World. It holds the seed of the world
// and the collaborators used to populate and persist it.
type Config struct {
	// Log is the Logger that will be used to log errors and debug messages to.
	// If set to nil, slog.Default() is used.
	Log *slog.Logger
	// Name is the name of a new world. It is ignored if the Provider already
	// holds a world.
	Name string
	// Seed is the seed of a new world. It is ignored if the Provider already
	// holds a world, in which case the stored seed is used.
	Seed int64
	// Bounds limits the chunks that may exist in the World. The zero value
	// does not limit the world.
	Bounds cube.Bounds
	// ReadOnly specifies if the World should be read-only, meaning no new data
	// will be written to the Provider and bricks cannot be changed.
	ReadOnly bool
	// SaveInterval specifies how often modified chunks are saved to the
	// Provider. Leaving it as 0 saves every five minutes. A negative value
	// disables autosaving.
	SaveInterval time.Duration
	// SaveWorkers is the number of chunks stored concurrently by Save. Values
	// of 0 or below result in runtime.NumCPU() workers.
	SaveWorkers int
	// Provider is the Provider implementation used to read and write chunks
	// and metadata. If nil, NopProvider is used and nothing is persisted.
	Provider Provider
	// Generator populates chunks that could not be read from the Provider.
	// If nil, NopGenerator is used and new chunks are empty.
	Generator Generator
	// GeneratorName is stored in the metadata of new worlds.
	GeneratorName string
	// GeneratorWorkers is the number of goroutines that generate chunks.
	// Values of 0 or below result in one worker per available CPU, minus one.
	GeneratorWorkers int
	// GeneratorQueueSize is the number of generation tasks that may wait for a
	// worker before requests start piling up. Values of 0 or below result in
	// 64 tasks per worker.
	GeneratorQueueSize int
	// Handler receives notifications about chunks of the World. If nil,
	// NopHandler is used.
	Handler Handler
}

// New creates a World using the Config conf. The metadata of an existing
// world is read from the Provider; if there is none, new metadata is created
// from the Config and stored. An error wrapping save.ErrVersionMismatch is
// returned if the Provider holds a world of another format.
func (conf Config) New() (*World, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Provider == nil {
		conf.Provider = NopProvider{}
	}
	if conf.Generator == nil {
		conf.Generator = NopGenerator{}
	}
	if conf.Handler == nil {
		conf.Handler = NopHandler{}
	}
	if conf.Name == "" {
		conf.Name = "World"
	}
	if conf.SaveInterval == 0 {
		conf.SaveInterval = time.Minute * 5
	}
	if conf.SaveWorkers <= 0 {
		conf.SaveWorkers = runtime.NumCPU()
	}
	if conf.GeneratorWorkers <= 0 {
		conf.GeneratorWorkers = max(1, runtime.NumCPU()-1)
	}
	if conf.GeneratorQueueSize <= 0 {
		conf.GeneratorQueueSize = conf.GeneratorWorkers * 64
	}

	meta, err := conf.Provider.Metadata()
	switch {
	case err == nil:
		conf.Log.Debug("Loaded world metadata.", "name", meta.Name, "seed", meta.Seed, "id", meta.ID)
	case errors.Is(err, save.ErrNotFound):
		meta = save.NewMetadata(conf.Name, conf.Seed, conf.GeneratorName)
		if !conf.ReadOnly {
			if err := conf.Provider.SaveMetadata(meta); err != nil {
				return nil, fmt.Errorf("save world metadata: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("load world metadata: %w", err)
	}

	w := &World{
		conf:           conf,
		meta:           meta,
		closing:        make(chan struct{}),
		generatorQueue: make(chan generationTask, conf.GeneratorQueueSize),
		dirty:          make(map[cube.ChunkPos]struct{}),
	}
	for i := range w.shards {
		w.shards[i].chunks = make(map[cube.ChunkPos]*Column)
	}
	w.running.Add(1 + conf.GeneratorWorkers)
	for range conf.GeneratorWorkers {
		go w.generatorWorker()
	}
	go w.autoSave()
	return w, nil
}
