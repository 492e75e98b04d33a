// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package tiles provides Web Mercator XYZ tile arithmetic shared by the
// resolver, the download orchestrator, and the derived-tile generators.
//
// All coordinates follow the XYZ addressing scheme: integer (z, x, y) with
// 0 <= x, y < 2^z and y = 0 at the north edge (EPSG:3857).
package tiles

import (
	"fmt"
	"math"
)

// SectorZoom is the zoom level used as the unit of offline storage.
// A zoom-6 tile covers roughly 625 km at the equator, which keeps per-sector
// archives at a size the extraction utility handles in one pass.
const SectorZoom = 6

// Tile addresses a single Web Mercator tile.
type Tile struct {
	Z int
	X int
	Y int
}

// Valid reports whether the tile coordinate lies inside the zoom's grid.
func (t Tile) Valid() bool {
	if t.Z < 0 || t.Z > 30 {
		return false
	}
	n := 1 << uint(t.Z)
	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

// String renders the tile as "z/x/y", the form used in sector identifiers.
func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Sector reduces the tile to its parent sector at SectorZoom.
// Only defined for z >= SectorZoom; lower zooms have no containing sector.
func (t Tile) Sector() (Tile, bool) {
	if t.Z < SectorZoom {
		return Tile{}, false
	}
	shift := uint(t.Z - SectorZoom)
	return Tile{Z: SectorZoom, X: t.X >> shift, Y: t.Y >> shift}, true
}

// SectorDir returns the on-disk directory name for a sector tile,
// "{z}_{x}_{y}".
func SectorDir(t Tile) string {
	return fmt.Sprintf("%d_%d_%d", t.Z, t.X, t.Y)
}

// Bbox is a geographic bounding box in degrees.
type Bbox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// String renders the box as "w,s,e,n" for the extraction utility's --bbox
// argument.
func (b Bbox) String() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.West, b.South, b.East, b.North)
}

// ToBbox computes the geographic bounds of a tile using the Web Mercator
// inverse projection.
func ToBbox(t Tile) Bbox {
	n := math.Pow(2, float64(t.Z))
	return Bbox{
		West:  float64(t.X)/n*360 - 180,
		East:  float64(t.X+1)/n*360 - 180,
		North: yToLat(float64(t.Y), n),
		South: yToLat(float64(t.Y+1), n),
	}
}

func yToLat(y, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180 / math.Pi
}

// WrapX wraps an x coordinate across the date line. Neighbors requested at
// x = -1 resolve to the last column and vice versa.
func WrapX(x, z int) int {
	n := 1 << uint(z)
	return ((x % n) + n) % n
}

// InRangeY reports whether a y coordinate lies on the sphere at zoom z.
// Y does not wrap; off-sphere rows are synthesized by the terrain loader.
func InRangeY(y, z int) bool {
	return y >= 0 && y < 1<<uint(z)
}
