package save

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// FormatVersion is the version of the world format written by this package.
// Worlds with another format version are not read.
const FormatVersion = 1

var metadataMagic = [4]byte{'B', 'R', 'K', 'W'}

// Metadata holds the global state of a world.
type Metadata struct {
	// Name is the display name of the world.
	Name string
	// ID uniquely identifies the world.
	ID uuid.UUID
	// Seed drives terrain generation.
	Seed int64
	// ChunkSize is the edge length of chunks in the world.
	ChunkSize int
	// FormatVersion is the version of the format the world was written in.
	FormatVersion int
	// Generator is the name of the generator that populates new chunks.
	Generator string
	// CreatedAt is the time the world was first created.
	CreatedAt time.Time
	// LastSaved is the time the metadata was last stored.
	LastSaved time.Time
}

// NewMetadata returns Metadata for a new world with a random ID, the current
// format version and chunk size.
func NewMetadata(name string, seed int64, generator string) Metadata {
	now := time.Now()
	return Metadata{
		Name:          name,
		ID:            uuid.New(),
		Seed:          seed,
		ChunkSize:     chunk.Size,
		FormatVersion: FormatVersion,
		Generator:     generator,
		CreatedAt:     now,
		LastSaved:     now,
	}
}

// metadataData is the NBT representation of Metadata.
type metadataData struct {
	Name          string `nbt:"LevelName"`
	ID            string `nbt:"WorldID"`
	Seed          int64  `nbt:"RandomSeed"`
	ChunkSize     int32  `nbt:"ChunkSize"`
	FormatVersion int32  `nbt:"FormatVersion"`
	Generator     string `nbt:"Generator"`
	CreatedAt     int64  `nbt:"CreatedAt"`
	LastSaved     int64  `nbt:"LastSaved"`
}

// EncodeMetadata encodes m into a metadata record: a magic value, the format
// version, the NBT payload and a checksum.
func EncodeMetadata(m Metadata) ([]byte, error) {
	if m.FormatVersion == 0 {
		m.FormatVersion = FormatVersion
	}
	if m.ChunkSize == 0 {
		m.ChunkSize = chunk.Size
	}
	data, err := nbt.MarshalEncoding(metadataData{
		Name:          m.Name,
		ID:            m.ID.String(),
		Seed:          m.Seed,
		ChunkSize:     int32(m.ChunkSize),
		FormatVersion: int32(m.FormatVersion),
		Generator:     m.Generator,
		CreatedAt:     m.CreatedAt.Unix(),
		LastSaved:     m.LastSaved.Unix(),
	}, nbt.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	b := make([]byte, 0, 6+len(data)+checksumSize)
	b = append(b, metadataMagic[:]...)
	b = binary.LittleEndian.AppendUint16(b, uint16(m.FormatVersion))
	b = append(b, data...)
	return binary.LittleEndian.AppendUint64(b, xxhash.Sum64(b)), nil
}

// DecodeMetadata decodes a record produced by EncodeMetadata. Worlds written
// in another format version or with another chunk size result in
// ErrVersionMismatch.
func DecodeMetadata(b []byte) (Metadata, error) {
	if len(b) < 6+checksumSize || [4]byte(b[:4]) != metadataMagic {
		return Metadata{}, fmt.Errorf("%w: bad metadata header", ErrCorruptData)
	}
	if v := binary.LittleEndian.Uint16(b[4:]); v != FormatVersion {
		return Metadata{}, fmt.Errorf("%w: world format %d, expected %d", ErrVersionMismatch, v, FormatVersion)
	}
	body := b[:len(b)-checksumSize]
	if binary.LittleEndian.Uint64(b[len(body):]) != xxhash.Sum64(body) {
		return Metadata{}, fmt.Errorf("%w: metadata checksum mismatch", ErrCorruptData)
	}
	var d metadataData
	if err := nbt.UnmarshalEncoding(body[6:], &d, nbt.LittleEndian); err != nil {
		return Metadata{}, fmt.Errorf("%w: decode metadata: %v", ErrCorruptData, err)
	}
	if d.ChunkSize != chunk.Size {
		return Metadata{}, fmt.Errorf("%w: chunk size %d, expected %d", ErrVersionMismatch, d.ChunkSize, chunk.Size)
	}
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: world id: %v", ErrCorruptData, err)
	}
	return Metadata{
		Name:          d.Name,
		ID:            id,
		Seed:          d.Seed,
		ChunkSize:     int(d.ChunkSize),
		FormatVersion: int(d.FormatVersion),
		Generator:     d.Generator,
		CreatedAt:     time.Unix(d.CreatedAt, 0),
		LastSaved:     time.Unix(d.LastSaved, 0),
	}, nil
}
