// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package pmtilestest builds synthetic archives for tests of packages that
// consume archive readers.
package pmtilestest

import (
	"bytes"
	"os"
	"sort"

	"github.com/tomtom215/pelagos/internal/pmtiles"
	"github.com/tomtom215/pelagos/internal/tiles"
)

// BuildArchive assembles a minimal single-directory archive holding the
// given tiles: header | gzip root directory | tile data.
func BuildArchive(contents map[tiles.Tile][]byte) ([]byte, error) {
	type record struct {
		id   uint64
		body []byte
	}
	records := make([]record, 0, len(contents))
	for tile, body := range contents {
		records = append(records, record{pmtiles.EncodeTileID(tile), body})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].id < records[j].id })

	var tileData bytes.Buffer
	entries := make([]pmtiles.Entry, 0, len(records))
	minZoom, maxZoom := uint8(0), uint8(14)
	for _, rec := range records {
		entries = append(entries, pmtiles.Entry{
			TileID:    rec.id,
			Offset:    uint64(tileData.Len()),
			Length:    uint32(len(rec.body)),
			RunLength: 1,
		})
		tileData.Write(rec.body)
	}

	rootCompressed, err := pmtiles.Compress(pmtiles.SerializeDirectory(entries), pmtiles.CompressionGzip)
	if err != nil {
		return nil, err
	}

	header := &pmtiles.Header{
		HeaderMagic:         pmtiles.HeaderMagicV3,
		RootOffset:          pmtiles.HeaderLength,
		RootLength:          uint64(len(rootCompressed)),
		TileDataOffset:      uint64(pmtiles.HeaderLength + len(rootCompressed)),
		TileDataLength:      uint64(tileData.Len()),
		InternalCompression: pmtiles.CompressionGzip,
		TileCompression:     pmtiles.CompressionNone,
		TileType:            pmtiles.TileTypeMvt,
		MinZoom:             minZoom,
		MaxZoom:             maxZoom,
	}

	var archive bytes.Buffer
	archive.Write(pmtiles.SerializeHeader(header))
	archive.Write(rootCompressed)
	archive.Write(tileData.Bytes())
	return archive.Bytes(), nil
}

// WriteArchive builds an archive and writes it to path.
func WriteArchive(path string, contents map[tiles.Tile][]byte) error {
	data, err := BuildArchive(contents)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
