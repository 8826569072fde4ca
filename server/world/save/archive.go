package save

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/klauspost/compress/zstd"
)

// ArchiveVersion is the version of the archive container written by
// ArchiveWriter.
const ArchiveVersion = 1

var archiveMagic = [4]byte{'B', 'R', 'K', 'A'}

// maxRecordSize limits the size of a single record read from an archive.
const maxRecordSize = 1 << 20

// ArchiveWriter writes a complete world to a single zstd compressed stream:
// a metadata record followed by length-prefixed chunk records.
type ArchiveWriter struct {
	enc    *zstd.Encoder
	chunks int
	buf    []byte
}

// NewArchiveWriter writes the archive header and metadata m to w and returns
// an ArchiveWriter to which chunks may be added. Close must be called to
// finish the archive.
func NewArchiveWriter(w io.Writer, m Metadata) (*ArchiveWriter, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	meta, err := EncodeMetadata(m)
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	a := &ArchiveWriter{enc: enc}
	header := append(archiveMagic[:], ArchiveVersion)
	if _, err := enc.Write(header); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("write archive header: %w", err)
	}
	if err := a.writeRecord(meta); err != nil {
		_ = enc.Close()
		return nil, err
	}
	return a, nil
}

// WriteChunk adds the bricks of the chunk at pos to the archive.
func (a *ArchiveWriter) WriteChunk(pos cube.ChunkPos, bricks []brick.ID) error {
	if err := a.writeRecord(EncodeChunk(pos, bricks)); err != nil {
		return err
	}
	a.chunks++
	return nil
}

// Chunks returns the number of chunks written so far.
func (a *ArchiveWriter) Chunks() int {
	return a.chunks
}

func (a *ArchiveWriter) writeRecord(rec []byte) error {
	a.buf = binary.AppendUvarint(a.buf[:0], uint64(len(rec)))
	if _, err := a.enc.Write(a.buf); err != nil {
		return fmt.Errorf("write record length: %w", err)
	}
	if _, err := a.enc.Write(rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Close terminates the archive and flushes the compressed stream. The
// underlying writer is not closed.
func (a *ArchiveWriter) Close() error {
	a.buf = binary.AppendUvarint(a.buf[:0], 0)
	_, werr := a.enc.Write(a.buf)
	return errors.Join(werr, a.enc.Close())
}

// WriteArchive writes metadata m and every chunk yielded by chunks to w. It
// stops between chunks once ctx is done and returns the context error.
func WriteArchive(ctx context.Context, w io.Writer, m Metadata, chunks iter.Seq2[cube.ChunkPos, []brick.ID]) (err error) {
	a, err := NewArchiveWriter(w, m)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()
	for pos, bricks := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.WriteChunk(pos, bricks); err != nil {
			return fmt.Errorf("write chunk %v: %w", pos, err)
		}
	}
	return nil
}

// ReadArchive reads an archive written by ArchiveWriter from r. It calls fn
// for every chunk in the archive and returns the metadata of the world. If fn
// returns an error, reading stops and the error is returned.
func ReadArchive(r io.Reader, fn func(pos cube.ChunkPos, bricks []brick.ID) error) (Metadata, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	var header [5]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return Metadata{}, fmt.Errorf("%w: read archive header: %v", ErrCorruptData, err)
	}
	if [4]byte(header[:4]) != archiveMagic {
		return Metadata{}, fmt.Errorf("%w: bad archive header", ErrCorruptData)
	}
	if header[4] != ArchiveVersion {
		return Metadata{}, fmt.Errorf("%w: archive version %d, expected %d", ErrVersionMismatch, header[4], ArchiveVersion)
	}

	rec, err := readRecord(br)
	if err != nil {
		return Metadata{}, err
	}
	if rec == nil {
		return Metadata{}, fmt.Errorf("%w: archive has no metadata", ErrCorruptData)
	}
	m, err := DecodeMetadata(rec)
	if err != nil {
		return Metadata{}, err
	}
	for {
		rec, err := readRecord(br)
		if err != nil {
			return m, err
		}
		if rec == nil {
			return m, nil
		}
		pos, bricks, err := DecodeChunk(rec)
		if err != nil {
			return m, err
		}
		if err := fn(pos, bricks); err != nil {
			return m, err
		}
	}
}

// readRecord reads one length-prefixed record. A nil record without error
// marks the end of the archive.
func readRecord(br *bufio.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("%w: read record length: %v", ErrCorruptData, err)
	}
	if n == 0 {
		return nil, nil
	}
	if n > maxRecordSize {
		return nil, fmt.Errorf("%w: record of %d bytes", ErrCorruptData, n)
	}
	rec := make([]byte, n)
	if _, err := io.ReadFull(br, rec); err != nil {
		return nil, fmt.Errorf("%w: read record: %v", ErrCorruptData, err)
	}
	return rec, nil
}
