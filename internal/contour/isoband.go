// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package contour

import (
	"math"
	"sort"

	"github.com/tomtom215/pelagos/internal/terrain"
)

// Polygon is an outer ring with its holes.
type Polygon struct {
	Outer Ring
	Holes []Ring
}

// Band is the filled region with elevation in [Lower, Upper), plus the
// label lines along its deeper boundary.
type Band struct {
	Lower      float64
	Upper      float64
	Polygons   []Polygon
	LabelLines []Line
}

// Isobands produces one band per consecutive pair of ascending levels.
//
// The region with f >= upper is a subset of the region with f >= lower, so
// the band's boundary is the lower region's rings plus the upper region's
// rings reversed. Outer rings carry negative signed area; each hole is
// assigned to the smallest outer ring containing it.
func Isobands(tile terrain.HeightTile, levels []float64, extent int) []Band {
	if len(levels) < 2 {
		return nil
	}
	sorted := append([]float64(nil), levels...)
	sort.Float64s(sorted)

	g := grid{tile: tile, w: tile.Width, h: tile.Height, padded: true}

	// Region rings per level, computed once and shared by both bands that
	// border the level.
	ringsAt := make(map[float64][]Ring, len(sorted))
	regionRings := func(level float64) []Ring {
		if rings, ok := ringsAt[level]; ok {
			return rings
		}
		var rings []Ring
		for _, line := range scale(chain(g.collect(level)), g.w, g.h, extent) {
			if len(line) >= 4 && line[0] == line[len(line)-1] {
				rings = append(rings, Ring(line))
			}
		}
		ringsAt[level] = rings
		return rings
	}

	var bands []Band
	for i := 0; i+1 < len(sorted); i++ {
		lower, upper := sorted[i], sorted[i+1]

		var rings []Ring
		rings = append(rings, regionRings(lower)...)
		for _, r := range regionRings(upper) {
			rings = append(rings, reverse(r))
		}

		band := Band{Lower: lower, Upper: upper}
		band.Polygons = assemblePolygons(rings)
		band.LabelLines = labelLines(tile, rings, lower, upper, extent)
		if len(band.Polygons) > 0 {
			bands = append(bands, band)
		}
	}
	return bands
}

func reverse(r Ring) Ring {
	out := make(Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

// SignedArea computes the shoelace sum. In tile coordinates (y down),
// outer rings are clockwise and negative.
func SignedArea(r Ring) float64 {
	var sum float64
	for i := 0; i+1 < len(r); i++ {
		sum += r[i].X*r[i+1].Y - r[i+1].X*r[i].Y
	}
	return sum / 2
}

// Contains reports whether p lies inside the ring by even-odd ray casting.
func Contains(r Ring, p Point) bool {
	inside := false
	for i := 0; i+1 < len(r); i++ {
		a, b := r[i], r[i+1]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)/(b.Y-a.Y)*(b.X-a.X)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// assemblePolygons partitions rings into outers and holes and assigns each
// hole to the smallest containing outer ring.
func assemblePolygons(rings []Ring) []Polygon {
	type outer struct {
		ring Ring
		area float64 // absolute
		poly *Polygon
	}

	var outers []*outer
	var holes []Ring
	var polygons []*Polygon

	for _, r := range rings {
		area := SignedArea(r)
		if area == 0 {
			continue
		}
		if area < 0 {
			p := &Polygon{Outer: r}
			polygons = append(polygons, p)
			outers = append(outers, &outer{ring: r, area: -area, poly: p})
		} else {
			holes = append(holes, r)
		}
	}

	// Smallest containing outer first.
	sort.Slice(outers, func(i, j int) bool { return outers[i].area < outers[j].area })

	for _, hole := range holes {
		probe := hole[0]
		for _, o := range outers {
			if Contains(o.ring, probe) {
				o.poly.Holes = append(o.poly.Holes, hole)
				break
			}
		}
	}

	result := make([]Polygon, 0, len(polygons))
	for _, p := range polygons {
		result = append(result, *p)
	}
	return result
}

// labelLines classifies each ring by sampling the elevation at its first
// point: rings whose sample sits closer to the lower level form the deeper
// boundary of the band and are emitted as lines, split at the tile extent.
// Rings with a non-finite sample are discarded.
func labelLines(tile terrain.HeightTile, rings []Ring, lower, upper float64, extent int) []Line {
	sx := float64(tile.Width-1) / float64(extent)
	sy := float64(tile.Height-1) / float64(extent)

	var lines []Line
	for _, r := range rings {
		if len(r) == 0 {
			continue
		}
		gx := clamp(int(math.Round(r[0].X*sx)), 0, tile.Width-1)
		gy := clamp(int(math.Round(r[0].Y*sy)), 0, tile.Height-1)
		sample := float64(tile.At(gx, gy))
		if math.IsNaN(sample) || math.IsInf(sample, 0) {
			continue
		}
		if math.Abs(sample-lower) < math.Abs(sample-upper) {
			lines = append(lines, splitAtExtent(r, extent)...)
		}
	}
	return lines
}

// splitAtExtent walks the ring and emits sub-segments of consecutive
// interior points; runs shorter than two points are dropped. Rings created
// by the border padding run exactly along 0 and extent, and those stretches
// must not render as depth contours.
func splitAtExtent(r Ring, extent int) []Line {
	const eps = 1e-9
	interior := func(p Point) bool {
		return p.X > eps && p.X < float64(extent)-eps &&
			p.Y > eps && p.Y < float64(extent)-eps
	}

	var lines []Line
	var current Line
	for _, p := range r {
		if interior(p) {
			current = append(current, p)
			continue
		}
		if len(current) >= 2 {
			lines = append(lines, current)
		}
		current = nil
	}
	if len(current) >= 2 {
		lines = append(lines, current)
	}
	return lines
}
