package brickdb

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
)

// Config holds the optional parameters of a DB.
type Config struct {
	// Log is the Logger that will be used to log errors and debug messages to.
	// If set to nil, slog.Default() is used.
	Log *slog.Logger
	// Compression specifies the compression to use for compressing new data in
	// the database. Decompression of the database will happen based on IDs
	// found in the compressed blocks and is therefore uninfluenced by this
	// field. If left empty, Compression will default to opt.FlateCompression.
	Compression opt.Compression
	// BlockSize specifies the size of blocks to be compressed. The default
	// value, when left empty, is 16KiB (16 * opt.KiB). Higher values generally
	// lead to better compression ratios at the expense of slightly higher
	// memory usage while (de)compressing.
	BlockSize int
	// ReadOnly opens the database without write access. Storing chunks or
	// metadata fails in that case.
	ReadOnly bool
}

// Open creates a new DB reading and writing from/to files under the path
// passed. If the directory does not exist, it is created.
func (conf Config) Open(dir string) (*DB, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	conf.Log = conf.Log.With("provider", "brickdb")
	if conf.BlockSize == 0 {
		conf.BlockSize = 16 * opt.KiB
	}
	if conf.Compression == opt.DefaultCompression {
		conf.Compression = opt.FlateCompression
	}
	if !conf.ReadOnly {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	ldb, err := leveldb.OpenFile(dir, &opt.Options{
		Compression: conf.Compression,
		BlockSize:   conf.BlockSize,
		ReadOnly:    conf.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: leveldb: %w", err)
	}
	conf.Log.Debug("Opened world database.", "dir", dir)
	return &DB{conf: conf, ldb: ldb, dir: dir}, nil
}
