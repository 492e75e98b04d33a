// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package contour

import (
	"math"

	"github.com/tomtom215/pelagos/internal/terrain"
)

// DefaultExtent is the vector-tile coordinate space.
const DefaultExtent = 4096

// IntervalForZoom returns the land contour spacing in metres.
func IntervalForZoom(z int) float64 {
	switch {
	case z >= 14:
		return 10
	case z >= 13:
		return 20
	case z >= 12:
		return 50
	case z >= 10:
		return 100
	case z >= 8:
		return 200
	default:
		return 500
	}
}

// Range scans the grid for its finite elevation extremes. The boolean is
// false when every sample is NaN.
func Range(tile terrain.HeightTile) (min, max float64, ok bool) {
	min = math.Inf(1)
	max = math.Inf(-1)
	for y := 0; y < tile.Height; y++ {
		for x := 0; x < tile.Width; x++ {
			v := float64(tile.At(x, y))
			if math.IsNaN(v) {
				continue
			}
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	return min, max, min <= max
}

// LevelsInRange returns the interval multiples within [min, max].
func LevelsInRange(min, max, interval float64) []float64 {
	if interval <= 0 || min > max {
		return nil
	}
	var levels []float64
	for level := math.Ceil(min/interval) * interval; level <= max; level += interval {
		levels = append(levels, level)
	}
	return levels
}

// Isolines runs marching squares for each threshold and returns polylines
// in tile-extent space. A contour that closes inside the grid comes back
// with its first point repeated at the end. Grid coordinates 0..Width-1
// map onto 0..extent, so every point lies within the extent.
func Isolines(tile terrain.HeightTile, levels []float64, extent int) map[float64][]Line {
	g := grid{tile: tile, w: tile.Width, h: tile.Height}
	result := make(map[float64][]Line, len(levels))
	for _, level := range levels {
		lines := chain(g.collect(level))
		if len(lines) == 0 {
			continue
		}
		result[level] = scale(lines, g.w, g.h, extent)
	}
	return result
}
