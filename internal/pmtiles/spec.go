// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package pmtiles implements random-access reading of cloud-optimized
// PMTiles v3 archives, either from a local file or over HTTP byte ranges.
//
// An archive is a 127-byte header, a gzip-compressed root directory that by
// spec fits inside the first 16 KiB, optional leaf directories, JSON
// metadata, and the tile data section. Directories map Hilbert-encoded tile
// IDs to byte ranges; lookup walks root to leaf and then issues a single
// ranged read for the tile body.
package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/google/hilbert"

	"github.com/tomtom215/pelagos/internal/tiles"
)

// Compression identifies the codec of directories and tile bodies.
type Compression uint8

const (
	CompressionUnknown Compression = iota
	CompressionNone
	CompressionGzip
	CompressionBrotli
	CompressionZstd
)

// TileType identifies the payload format declared by the archive header.
type TileType uint8

const (
	TileTypeUnknown TileType = iota
	TileTypeMvt
	TileTypePng
	TileTypeJpeg
	TileTypeWebp
	TileTypeAvif
)

// Header is the fixed-size archive preamble. Field order and widths follow
// the PMTiles v3 spec; the struct is deserialized with binary.Read.
type Header struct {
	HeaderMagic         uint64
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

const (
	headerMagic     uint64 = 0x73656C69544D50 // "PMTiles"
	headerMagicMask uint64 = 1<<56 - 1

	// HeaderMagicV3 is the magic-plus-version word of a v3 archive.
	HeaderMagicV3 uint64 = headerMagic | (0x03 << 56)

	// HeaderLength is the serialized size of Header.
	HeaderLength = 127
)

var (
	ErrInvalidHeader  = errors.New("invalid archive header")
	ErrInvalidVersion = errors.New("unsupported archive version")
)

// DeserializeHeader parses and validates the 127-byte header block.
func DeserializeHeader(buffer []byte) (*Header, error) {
	header := Header{}
	if err := binary.Read(bytes.NewReader(buffer), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if header.HeaderMagic&headerMagicMask != headerMagic {
		return nil, ErrInvalidHeader
	}
	if header.HeaderMagic != HeaderMagicV3 {
		return nil, ErrInvalidVersion
	}
	return &header, nil
}

// SerializeHeader renders a header back to its 127-byte wire form.
// Used by tests to build synthetic archives.
func SerializeHeader(header *Header) []byte {
	var buffer bytes.Buffer
	binary.Write(&buffer, binary.LittleEndian, header)
	return buffer.Bytes()
}

// Entry is one directory record. RunLength > 0 addresses tile data;
// RunLength == 0 points at a leaf directory.
type Entry struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// DeserializeDirectory decodes the column-oriented uvarint directory layout:
// entry count, delta-coded tile IDs, run lengths, lengths, then offsets
// where 0 means "contiguous with the previous entry".
func DeserializeDirectory(data []byte) ([]Entry, error) {
	byteReader := bytes.NewReader(data)

	var err error
	readUvarint := func() uint64 {
		if err != nil {
			return 0
		}
		var value uint64
		value, err = binary.ReadUvarint(byteReader)
		return value
	}

	numEntries := readUvarint()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, numEntries)

	lastID := uint64(0)
	for i := range entries {
		lastID += readUvarint()
		entries[i].TileID = lastID
	}
	for i := range entries {
		entries[i].RunLength = uint32(readUvarint())
	}
	for i := range entries {
		entries[i].Length = uint32(readUvarint())
	}
	for i := range entries {
		value := readUvarint()
		if value == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = value - 1
		}
	}
	return entries, err
}

// SerializeDirectory encodes entries into the wire layout decoded by
// DeserializeDirectory. Entries must be sorted by TileID.
func SerializeDirectory(entries []Entry) []byte {
	buffer := make([]byte, 0)
	buffer = binary.AppendUvarint(buffer, uint64(len(entries)))

	lastID := uint64(0)
	for _, entry := range entries {
		buffer = binary.AppendUvarint(buffer, entry.TileID-lastID)
		lastID = entry.TileID
	}
	for _, entry := range entries {
		buffer = binary.AppendUvarint(buffer, uint64(entry.RunLength))
	}
	for _, entry := range entries {
		buffer = binary.AppendUvarint(buffer, uint64(entry.Length))
	}
	nextOffset := uint64(0)
	for i, entry := range entries {
		if i > 0 && entry.Offset == nextOffset {
			buffer = binary.AppendUvarint(buffer, 0)
		} else {
			buffer = binary.AppendUvarint(buffer, entry.Offset+1)
		}
		nextOffset = entry.Offset + uint64(entry.Length)
	}
	return buffer
}

// FindEntry locates the entry covering tileID via binary search. The second
// return is false when no entry covers the ID. A hit with RunLength == 0
// means the search continues in the referenced leaf directory.
func FindEntry(entries []Entry, tileID uint64) (Entry, bool) {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if entries[mid].TileID <= tileID {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return Entry{}, false
	}
	entry := entries[lo-1]
	if entry.RunLength == 0 {
		return entry, true
	}
	if tileID < entry.TileID+uint64(entry.RunLength) {
		return entry, true
	}
	return Entry{}, false
}

// EncodeTileID maps a ZXY tile to its position on the zoom level's Hilbert
// curve, offset by the count of all tiles on lower levels.
func EncodeTileID(t tiles.Tile) uint64 {
	h, _ := hilbert.NewHilbert(1 << uint(t.Z))
	code, _ := h.MapInverse(t.X, t.Y)
	tilesBelow := (uint64(1)<<(2*uint(t.Z)) - 1) / 3
	return uint64(code) + tilesBelow
}

// DecodeTileID is the inverse of EncodeTileID.
func DecodeTileID(tileID uint64) tiles.Tile {
	z := (bits.Len64(3*tileID+1) - 1) / 2
	tilesBelow := (uint64(1)<<(2*uint(z)) - 1) / 3
	h, _ := hilbert.NewHilbert(1 << uint(z))
	x, y, _ := h.Map(int(tileID - tilesBelow))
	return tiles.Tile{Z: z, X: x, Y: y}
}

// Decompress undoes the archive's internal compression. Only gzip and none
// are produced by the extraction utility; the exotic codecs are rejected.
func Decompress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(gz)
	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
}

// Compress applies the archive's internal compression. Test helper.
func Compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		var buffer bytes.Buffer
		gz := gzip.NewWriter(&buffer)
		if _, err := gz.Write(data); err != nil {
			return nil, err
		}
		if err := gz.Close(); err != nil {
			return nil, err
		}
		return buffer.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
}
