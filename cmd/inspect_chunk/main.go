// Command inspect_chunk prints the metadata of a stored world and the number
// of bricks of each material in its chunks. It can also export the world to
// an archive and read such an archive back.
package main

import (
	"context"
	"flag"
	"fmt"
	"iter"
	"os"
	"text/tabwriter"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/brickdb"
	"github.com/brickgame/brickworld/server/world/save"
	"github.com/brickgame/brickworld/server/world/sqlitedb"
)

// source is a stored world that can be listed.
type source interface {
	Metadata() (save.Metadata, error)
	Chunks() iter.Seq2[cube.ChunkPos, []brick.ID]
	Close() error
}

func main() {
	levelDir := flag.String("leveldb", "", "directory of a LevelDB world")
	sqlitePath := flag.String("sqlite", "", "file of a SQLite world")
	archivePath := flag.String("archive", "", "archive to read instead of a world")
	export := flag.String("export", "", "write the world to an archive at this path")
	verbose := flag.Bool("v", false, "print the bricks of every chunk")
	flag.Parse()

	if err := run(*levelDir, *sqlitePath, *archivePath, *export, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "inspect_chunk:", err)
		os.Exit(1)
	}
}

func run(levelDir, sqlitePath, archivePath, export string, verbose bool) error {
	if archivePath != "" {
		return readArchive(archivePath, verbose)
	}
	var (
		src source
		err error
	)
	switch {
	case levelDir != "":
		src, err = brickdb.Config{ReadOnly: true}.Open(levelDir)
	case sqlitePath != "":
		src, err = sqlitedb.Open(sqlitePath)
	default:
		return fmt.Errorf("one of -leveldb, -sqlite or -archive is required")
	}
	if err != nil {
		return err
	}
	defer src.Close()

	meta, err := src.Metadata()
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	if export != "" {
		f, err := os.Create(export)
		if err != nil {
			return err
		}
		if err := save.WriteArchive(context.Background(), f, meta, src.Chunks()); err != nil {
			_ = f.Close()
			return fmt.Errorf("export: %w", err)
		}
		return f.Close()
	}

	printMetadata(meta)
	var c counter
	for pos, bricks := range src.Chunks() {
		c.add(pos, bricks, verbose)
	}
	c.print()
	return nil
}

func readArchive(path string, verbose bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var c counter
	meta, err := save.ReadArchive(f, func(pos cube.ChunkPos, bricks []brick.ID) error {
		c.add(pos, bricks, verbose)
		return nil
	})
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	printMetadata(meta)
	c.print()
	return nil
}

func printMetadata(m save.Metadata) {
	fmt.Printf("name:      %s\nid:        %s\nseed:      %d\ngenerator: %s\nformat:    %d (chunk size %d)\ncreated:   %s\nsaved:     %s\n",
		m.Name, m.ID, m.Seed, m.Generator, m.FormatVersion, m.ChunkSize, m.CreatedAt.Format("2006-01-02 15:04:05"), m.LastSaved.Format("2006-01-02 15:04:05"))
}

// counter sums the bricks of the chunks passed to it.
type counter struct {
	chunks int
	total  []int
}

func (c *counter) add(pos cube.ChunkPos, bricks []brick.ID, verbose bool) {
	if c.total == nil {
		c.total = make([]int, brick.Count())
	}
	c.chunks++
	counts := make([]int, brick.Count())
	for _, b := range bricks {
		if b.Valid() {
			counts[b]++
			c.total[b]++
		}
	}
	if verbose {
		fmt.Printf("%v:", pos)
		for id, n := range counts {
			if n > 0 && !brick.ID(id).Empty() {
				fmt.Printf(" %v=%d", brick.ID(id), n)
			}
		}
		fmt.Println()
	}
}

func (c *counter) print() {
	fmt.Printf("chunks:    %d\n", c.chunks)
	if c.chunks == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for id, n := range c.total {
		fmt.Fprintf(w, "  %v\t%d\n", brick.ID(id), n)
	}
	_ = w.Flush()
}
