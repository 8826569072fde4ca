// Package save implements the binary formats used to persist a world: one
// record per chunk, a world metadata record and a single-stream archive that
// holds a complete world.
package save

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/cespare/xxhash/v2"
)

var (
	// ErrNotFound is returned by providers when no record exists for a chunk
	// or a world.
	ErrNotFound = errors.New("save: record not found")
	// ErrVersionMismatch is returned when a record was written in a format
	// version or chunk layout this package does not read.
	ErrVersionMismatch = errors.New("save: format version mismatch")
	// ErrCorruptData is returned when a record is malformed.
	ErrCorruptData = errors.New("save: corrupt data")
)

// ChunkVersion is the version of the chunk record format written by
// EncodeChunk.
const ChunkVersion = 1

const (
	encodingRaw byte = iota
	encodingRLE
)

var chunkMagic = [4]byte{'B', 'R', 'C', 'K'}

const (
	chunkHeaderSize = 24
	checksumSize    = 8
)

// EncodeChunk encodes the bricks of a chunk at position pos into a chunk
// record. Bricks must hold chunk.Volume elements. The payload is run-length
// encoded unless the raw form is smaller.
func EncodeChunk(pos cube.ChunkPos, bricks []brick.ID) []byte {
	if len(bricks) != chunk.Volume {
		panic("save: brick slice has wrong length")
	}
	rle := appendRuns(make([]byte, 0, 64), bricks)
	enc, payloadLen := encodingRLE, len(rle)
	if payloadLen >= chunk.Volume*2 {
		enc, payloadLen = encodingRaw, chunk.Volume*2
	}

	b := make([]byte, chunkHeaderSize, chunkHeaderSize+payloadLen+checksumSize)
	copy(b, chunkMagic[:])
	b[4] = ChunkVersion
	b[5] = enc
	b[6] = chunk.Size
	for i, v := range pos {
		binary.LittleEndian.PutUint32(b[8+i*4:], uint32(v))
	}
	binary.LittleEndian.PutUint32(b[20:], uint32(payloadLen))

	if enc == encodingRLE {
		b = append(b, rle...)
	} else {
		for _, id := range bricks {
			b = binary.LittleEndian.AppendUint16(b, uint16(id))
		}
	}
	return binary.LittleEndian.AppendUint64(b, xxhash.Sum64(b))
}

// DecodeChunk decodes a chunk record produced by EncodeChunk. It returns
// ErrVersionMismatch for records of another format version or chunk size,
// and ErrCorruptData for records that cannot be read.
func DecodeChunk(b []byte) (cube.ChunkPos, []brick.ID, error) {
	var pos cube.ChunkPos
	if len(b) < chunkHeaderSize+checksumSize || [4]byte(b[:4]) != chunkMagic {
		return pos, nil, fmt.Errorf("%w: bad chunk header", ErrCorruptData)
	}
	if b[4] != ChunkVersion {
		return pos, nil, fmt.Errorf("%w: chunk version %d, expected %d", ErrVersionMismatch, b[4], ChunkVersion)
	}
	if b[6] != chunk.Size {
		return pos, nil, fmt.Errorf("%w: chunk size %d, expected %d", ErrVersionMismatch, b[6], chunk.Size)
	}
	payloadLen := int(binary.LittleEndian.Uint32(b[20:]))
	if len(b) != chunkHeaderSize+payloadLen+checksumSize {
		return pos, nil, fmt.Errorf("%w: record length %d does not match payload length %d", ErrCorruptData, len(b), payloadLen)
	}
	body := b[:chunkHeaderSize+payloadLen]
	if sum := binary.LittleEndian.Uint64(b[len(body):]); sum != xxhash.Sum64(body) {
		return pos, nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptData)
	}
	for i := range pos {
		pos[i] = int32(binary.LittleEndian.Uint32(b[8+i*4:]))
	}

	payload := body[chunkHeaderSize:]
	bricks := make([]brick.ID, chunk.Volume)
	switch b[5] {
	case encodingRaw:
		if len(payload) != chunk.Volume*2 {
			return pos, nil, fmt.Errorf("%w: raw payload of %d bytes", ErrCorruptData, len(payload))
		}
		for i := range bricks {
			bricks[i] = brick.ID(binary.LittleEndian.Uint16(payload[i*2:]))
		}
	case encodingRLE:
		if err := readRuns(payload, bricks); err != nil {
			return pos, nil, err
		}
	default:
		return pos, nil, fmt.Errorf("%w: unknown encoding %d", ErrCorruptData, b[5])
	}
	for i, id := range bricks {
		if !id.Valid() {
			return pos, nil, fmt.Errorf("%w: unknown brick %d at index %d", ErrCorruptData, id, i)
		}
	}
	return pos, bricks, nil
}

// appendRuns appends bricks to b as runs of (uvarint length, uint16 brick).
func appendRuns(b []byte, bricks []brick.ID) []byte {
	for i := 0; i < len(bricks); {
		j := i + 1
		for j < len(bricks) && bricks[j] == bricks[i] {
			j++
		}
		b = binary.AppendUvarint(b, uint64(j-i))
		b = binary.LittleEndian.AppendUint16(b, uint16(bricks[i]))
		i = j
	}
	return b
}

// readRuns decodes runs written by appendRuns into dst, which must be filled
// exactly.
func readRuns(b []byte, dst []brick.ID) error {
	n := 0
	for len(b) > 0 {
		run, l := binary.Uvarint(b)
		if l <= 0 || run == 0 || len(b) < l+2 {
			return fmt.Errorf("%w: malformed run at brick %d", ErrCorruptData, n)
		}
		if run > uint64(len(dst)-n) {
			return fmt.Errorf("%w: run of %d overflows chunk at brick %d", ErrCorruptData, run, n)
		}
		id := brick.ID(binary.LittleEndian.Uint16(b[l:]))
		for range run {
			dst[n] = id
			n++
		}
		b = b[l+2:]
	}
	if n != len(dst) {
		return fmt.Errorf("%w: runs cover %d of %d bricks", ErrCorruptData, n, len(dst))
	}
	return nil
}
