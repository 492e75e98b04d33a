// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package terrain

import (
	"context"
	"fmt"

	"github.com/tomtom215/pelagos/internal/source"
	"github.com/tomtom215/pelagos/internal/tiles"
)

// Fetcher supplies the raw bytes of one terrain raster tile. The boolean is
// false when the tile does not exist; the derived facade adapts the
// resolver to this shape.
type Fetcher func(ctx context.Context, t tiles.Tile) ([]byte, bool, error)

// LoadNeighborhood produces the corner-aligned elevation grid for a derived
// tile at t.
//
// All data comes from zoom t.Z - overzoom: the parent tile and its 3×3
// neighborhood are fetched, composed, and the quadrant covering t is split
// out. X wraps at the date line; Y does not, and off-sphere rows are
// replaced by all-zero tiles. A missing center tile makes the whole
// neighborhood absent; other missing neighbors degrade to zero so a single
// absent edge tile cannot blank the derived tile.
//
// Within one call a local map deduplicates fetches, which matters at low
// zooms where wrapped neighbors coincide.
func LoadNeighborhood(ctx context.Context, fetch Fetcher, encoding source.Encoding, t tiles.Tile, overzoom int) (HeightTile, bool, error) {
	if overzoom < 0 {
		overzoom = 0
	}
	sz := t.Z - overzoom
	if sz < 0 {
		return HeightTile{}, false, fmt.Errorf("overzoom %d exceeds zoom %d", overzoom, t.Z)
	}
	parent := tiles.Tile{Z: sz, X: t.X >> uint(overzoom), Y: t.Y >> uint(overzoom)}

	// Per-generation fetch dedup; cleared when this call returns.
	fetched := make(map[tiles.Tile]*HeightTile)
	load := func(pt tiles.Tile) (*HeightTile, error) {
		if cached, ok := fetched[pt]; ok {
			return cached, nil
		}
		body, ok, err := fetch(ctx, pt)
		if err != nil {
			return nil, err
		}
		var result *HeightTile
		if ok {
			decoded, decErr := Decode(body, encoding)
			if decErr != nil {
				return nil, decErr
			}
			result = &decoded
		}
		fetched[pt] = result
		return result, nil
	}

	center, err := load(parent)
	if err != nil {
		return HeightTile{}, false, err
	}
	if center == nil {
		return HeightTile{}, false, nil
	}
	w, h := center.Width, center.Height

	var neighbors [9]*HeightTile
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			ny := parent.Y + row - 1
			if !tiles.InRangeY(ny, sz) {
				zero := Zero(w, h)
				neighbors[row*3+col] = &zero
				continue
			}
			nt := tiles.Tile{Z: sz, X: tiles.WrapX(parent.X+col-1, sz), Y: ny}
			tile, loadErr := load(nt)
			if loadErr != nil || tile == nil {
				zero := Zero(w, h)
				neighbors[row*3+col] = &zero
				continue
			}
			neighbors[row*3+col] = tile
		}
	}
	neighbors[4] = center

	composed := Combine(neighbors)
	if overzoom > 0 {
		factor := 1 << uint(overzoom)
		composed = composed.Split(factor, t.X&(factor-1), t.Y&(factor-1))
	}

	// Upsample small tiles so contour geometry stays smooth, then align
	// samples to grid corners for the isoline generator.
	if composed.Width < 100 {
		for composed.Width < 100 {
			composed = composed.SubsamplePixelCenters(2).Materialize(2)
		}
	} else {
		composed = composed.Materialize(2)
	}
	composed = composed.AveragePixelCentersToGrid().Materialize(1)

	return composed, true, nil
}
