// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package soundings samples a height tile into labeled spot depths.
//
// Sampling is a jittered grid driven by a 32-bit LCG seeded from the tile
// coordinate, so the same tile always yields byte-identical soundings and
// neighboring tiles get uncorrelated jitter. Points are sorted shallow
// first so downstream label placement draws the dangerous depths on top.
package soundings

import (
	"math"
	"sort"

	"github.com/tomtom215/pelagos/internal/terrain"
	"github.com/tomtom215/pelagos/internal/tiles"
)

// Sounding is one spot depth in tile-extent space.
type Sounding struct {
	X     int
	Y     int
	Depth float64 // positive metres below the datum, one decimal
}

// lcg is the 32-bit linear congruential generator used for jitter.
type lcg struct {
	state uint32
}

func newLCG(t tiles.Tile) *lcg {
	return &lcg{state: uint32(t.Z*1_000_000 + t.X*1_000 + t.Y)}
}

// unit returns the next pseudo-random value in [0, 1).
func (g *lcg) unit() float64 {
	g.state = g.state*1664525 + 1013904223
	return float64(g.state) / (1 << 32)
}

// spacingForZoom returns the grid spacing in extent units; deeper zooms
// carry denser soundings.
func spacingForZoom(z, extent int) int {
	switch {
	case z >= 14:
		return extent / 16
	case z >= 12:
		return extent / 12
	case z >= 10:
		return extent / 8
	default:
		return extent / 6
	}
}

// Generate samples the materialized height tile for tile t. Grid cells
// whose sample is unknown or on dry land produce no sounding.
func Generate(tile terrain.HeightTile, t tiles.Tile, extent int) []Sounding {
	spacing := spacingForZoom(t.Z, extent)
	rng := newLCG(t)

	sx := float64(tile.Width-1) / float64(extent)
	sy := float64(tile.Height-1) / float64(extent)

	var result []Sounding
	for gy := 0; gy < extent; gy += spacing {
		for gx := 0; gx < extent; gx += spacing {
			// Anchor a quarter into the cell, jitter across half of it.
			// Jitter is consumed for every cell, sampled or not, so the
			// sequence stays aligned with the grid.
			jx := rng.unit() * float64(spacing) / 2
			jy := rng.unit() * float64(spacing) / 2
			px := float64(gx) + float64(spacing)/4 + jx
			py := float64(gy) + float64(spacing)/4 + jy
			if px >= float64(extent) || py >= float64(extent) {
				continue
			}

			rx := int(math.Round(px * sx))
			ry := int(math.Round(py * sy))
			elevation := float64(tile.At(rx, ry))
			if math.IsNaN(elevation) || elevation >= 0 {
				continue
			}

			result = append(result, Sounding{
				X:     int(math.Round(px)),
				Y:     int(math.Round(py)),
				Depth: math.Round(-elevation*10) / 10,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Depth < result[j].Depth
	})
	return result
}
