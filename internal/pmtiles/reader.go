// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package pmtiles

import (
	"fmt"
	"os"
	"sync"

	"github.com/tomtom215/pelagos/internal/tiles"
)

// FetchFunc reads length bytes starting at offset from the underlying
// archive. Implementations are positional (pread or HTTP Range) so a single
// reader may serve concurrent lookups.
type FetchFunc func(offset, length uint64) ([]byte, error)

// Reader provides get-tile-by-zxy access to one archive.
//
// The root directory is fetched and decoded once on open and kept for the
// reader's lifetime; without that every lookup on a remote archive would
// re-read the directory. Leaf directories are cached by offset on first use.
type Reader struct {
	fetch  FetchFunc
	closer func() error
	header *Header

	mu     sync.Mutex
	root   []Entry
	leaves map[uint64][]Entry
}

// NewReader opens an archive over an arbitrary fetch function. The header
// and root directory are read eagerly so a malformed archive fails here
// rather than on first tile access.
func NewReader(fetch FetchFunc, closer func() error) (*Reader, error) {
	headerData, err := fetch(0, HeaderLength)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header, err := DeserializeHeader(headerData)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		fetch:  fetch,
		closer: closer,
		header: header,
		leaves: make(map[uint64][]Entry),
	}
	r.root, err = r.readDirectory(header.RootOffset, header.RootLength)
	if err != nil {
		return nil, fmt.Errorf("read root directory: %w", err)
	}
	return r, nil
}

// NewFileReader opens a local archive file with positional reads.
func NewFileReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fetch := func(offset, length uint64) ([]byte, error) {
		buffer := make([]byte, length)
		if _, err := file.ReadAt(buffer, int64(offset)); err != nil {
			return nil, err
		}
		return buffer, nil
	}
	r, err := NewReader(fetch, file.Close)
	if err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying file or connection.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// Header returns the parsed archive header.
func (r *Reader) Header() *Header {
	return r.header
}

// MinZoom and MaxZoom expose the archive's declared zoom range.
func (r *Reader) MinZoom() int { return int(r.header.MinZoom) }
func (r *Reader) MaxZoom() int { return int(r.header.MaxZoom) }

// Metadata returns the raw JSON metadata block.
func (r *Reader) Metadata() ([]byte, error) {
	data, err := r.fetch(r.header.MetadataOffset, r.header.MetadataLength)
	if err != nil {
		return nil, err
	}
	return Decompress(data, r.header.InternalCompression)
}

func (r *Reader) readDirectory(offset, length uint64) ([]Entry, error) {
	compressed, err := r.fetch(offset, length)
	if err != nil {
		return nil, err
	}
	data, err := Decompress(compressed, r.header.InternalCompression)
	if err != nil {
		return nil, err
	}
	return DeserializeDirectory(data)
}

func (r *Reader) leafDirectory(offset, length uint64) ([]Entry, error) {
	r.mu.Lock()
	if entries, ok := r.leaves[offset]; ok {
		r.mu.Unlock()
		return entries, nil
	}
	r.mu.Unlock()

	entries, err := r.readDirectory(r.header.LeafDirectoryOffset+offset, length)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.leaves[offset] = entries
	r.mu.Unlock()
	return entries, nil
}

// ReadTile returns the tile body for t. The boolean is false when the
// archive is valid but has no tile at the coordinate; errors are reserved
// for actual read failures.
func (r *Reader) ReadTile(t tiles.Tile) ([]byte, bool, error) {
	tileID := EncodeTileID(t)

	entries := r.root
	for {
		entry, found := FindEntry(entries, tileID)
		if !found {
			return nil, false, nil
		}
		if entry.RunLength > 0 {
			if entry.Length == 0 {
				return nil, false, nil
			}
			data, err := r.fetch(r.header.TileDataOffset+entry.Offset, uint64(entry.Length))
			if err != nil {
				return nil, false, err
			}
			return data, true, nil
		}
		var err error
		entries, err = r.leafDirectory(entry.Offset, uint64(entry.Length))
		if err != nil {
			return nil, false, err
		}
	}
}
