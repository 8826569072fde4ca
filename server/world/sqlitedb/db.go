// Package sqlitedb implements a world.Provider that stores a brick world in a
// single SQLite database file.
package sqlitedb

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/brickgame/brickworld/server/world/save"
	_ "modernc.org/sqlite"
)

// Compile time check to make sure DB implements world.Provider.
var _ world.Provider = (*DB)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	x    INTEGER NOT NULL,
	y    INTEGER NOT NULL,
	z    INTEGER NOT NULL,
	data BLOB    NOT NULL,
	PRIMARY KEY (x, y, z)
);
CREATE TABLE IF NOT EXISTS metadata (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	data BLOB    NOT NULL
);`

// Config holds the optional parameters of a DB.
type Config struct {
	// Log is the Logger that will be used to log errors and debug messages to.
	// If set to nil, slog.Default() is used.
	Log *slog.Logger
}

// DB stores chunk records and world metadata in SQLite. Each chunk is a row
// keyed by its position.
type DB struct {
	log   *slog.Logger
	sqlDB *sql.DB
}

// Open opens the database at path passed using the default Config.
func Open(path string) (*DB, error) {
	var conf Config
	return conf.Open(path)
}

// Open opens or creates the SQLite database at the path passed and creates
// its tables if needed.
func (conf Config) Open(path string) (*DB, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	// The pragmas are applied to every connection the pool opens.
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	log := conf.Log.With("provider", "sqlite")
	log.Debug("Opened world database.", "path", path)
	return &DB{log: log, sqlDB: sqlDB}, nil
}

// Metadata reads the world metadata. save.ErrNotFound is returned for an
// empty database.
func (db *DB) Metadata() (save.Metadata, error) {
	var b []byte
	err := db.sqlDB.QueryRow(`SELECT data FROM metadata WHERE id = 1`).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return save.Metadata{}, save.ErrNotFound
	} else if err != nil {
		return save.Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	return save.DecodeMetadata(b)
}

// SaveMetadata writes the world metadata.
func (db *DB) SaveMetadata(m save.Metadata) error {
	b, err := save.EncodeMetadata(m)
	if err != nil {
		return err
	}
	_, err = db.sqlDB.Exec(
		`INSERT INTO metadata (id, data) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET data = excluded.data`,
		b,
	)
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// LoadChunk reads the chunk at the position passed. save.ErrNotFound is
// returned if it was never stored.
func (db *DB) LoadChunk(pos cube.ChunkPos) (*chunk.Chunk, error) {
	var b []byte
	err := db.sqlDB.QueryRow(`SELECT data FROM chunks WHERE x = ? AND y = ? AND z = ?`, pos[0], pos[1], pos[2]).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, save.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("read chunk %v: %w", pos, err)
	}
	got, bricks, err := save.DecodeChunk(b)
	if err != nil {
		return nil, fmt.Errorf("decode chunk %v: %w", pos, err)
	}
	if got != pos {
		return nil, fmt.Errorf("%w: record for chunk %v stored at %v", save.ErrCorruptData, got, pos)
	}
	return chunk.FromBricks(bricks), nil
}

// StoreChunk writes the snapshot of the chunk at the position passed,
// replacing any earlier version.
func (db *DB) StoreChunk(pos cube.ChunkPos, snap chunk.Snapshot) error {
	_, err := db.sqlDB.Exec(
		`INSERT INTO chunks (x, y, z, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT (x, y, z) DO UPDATE SET data = excluded.data`,
		pos[0], pos[1], pos[2], save.EncodeChunk(pos, snap.Bricks),
	)
	if err != nil {
		return fmt.Errorf("write chunk %v: %w", pos, err)
	}
	return nil
}

// Len returns the number of chunks stored.
func (db *DB) Len() (int, error) {
	var n int
	if err := db.sqlDB.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Chunks iterates over all chunks stored, ordered by position. Rows that
// cannot be decoded are logged and skipped.
func (db *DB) Chunks() iter.Seq2[cube.ChunkPos, []brick.ID] {
	return func(yield func(cube.ChunkPos, []brick.ID) bool) {
		rows, err := db.sqlDB.Query(`SELECT data FROM chunks ORDER BY z, y, x`)
		if err != nil {
			db.log.Error("iterate chunks: " + err.Error())
			return
		}
		defer rows.Close()
		for rows.Next() {
			var b []byte
			if err := rows.Scan(&b); err != nil {
				db.log.Error("iterate chunks: " + err.Error())
				return
			}
			pos, bricks, err := save.DecodeChunk(b)
			if err != nil {
				db.log.Error("iterate chunks: " + err.Error())
				continue
			}
			if !yield(pos, bricks) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			db.log.Error("iterate chunks: " + err.Error())
		}
	}
}

// Close closes the database.
func (db *DB) Close() error {
	db.log.Debug("Closing world database...")
	return db.sqlDB.Close()
}
