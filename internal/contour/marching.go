// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package contour generates isolines and isobands from corner-aligned
// elevation grids using marching squares with linear interpolation.
//
// Isolines are polylines per threshold level; a closed one repeats its
// first point. Isobands are closed
// polygon rings per [lower, upper) range, built from the region inclusion
// f >= level: because thresholds are monotonic, the band is the region
// above the lower level minus the region above the upper level, so its
// boundary is the lower region's rings plus the upper region's rings with
// reversed orientation. Ring partition and hole assignment follow from
// signed area and point-in-ring containment.
package contour

import (
	"math"

	"github.com/tomtom215/pelagos/internal/terrain"
)

// Point is a vertex in tile-extent space.
type Point struct {
	X float64
	Y float64
}

// Line is a polyline; a closed one repeats its first point at the end.
type Line []Point

// Ring is a closed ring; first and last vertex are equal.
type Ring []Point

// segment is one directed marching-squares edge crossing. The region above
// the level lies to the left of the direction of travel.
type segment struct {
	a Point
	b Point
}

// padValue sits below every plausible elevation so the padded border closes
// region rings along the grid boundary.
const padValue = -1e9

// grid adapts a height tile for marching squares, optionally padded with a
// ring of below-everything corners whose coordinates clamp onto the grid
// border. Padding keeps every region bounded, which turns all boundary
// crossings into closed rings.
type grid struct {
	tile   terrain.HeightTile
	w, h   int
	padded bool
}

func (g grid) value(i, j int) float64 {
	if i < 0 || i >= g.w || j < 0 || j >= g.h {
		if g.padded {
			return padValue
		}
		return math.NaN()
	}
	return float64(g.tile.At(i, j))
}

func (g grid) coord(i, j int) (float64, float64) {
	ci := clamp(i, 0, g.w-1)
	cj := clamp(j, 0, g.h-1)
	return float64(ci), float64(cj)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// crossing interpolates the level crossing along the edge from corner
// (i0,j0) to corner (i1,j1).
func (g grid) crossing(level float64, i0, j0, i1, j1 int) Point {
	a := g.value(i0, j0)
	b := g.value(i1, j1)
	x0, y0 := g.coord(i0, j0)
	x1, y1 := g.coord(i1, j1)

	t := (level - a) / (b - a)
	if math.IsNaN(t) || math.IsInf(t, 0) {
		t = 0.5
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return Point{X: x0 + (x1-x0)*t, Y: y0 + (y1-y0)*t}
}

// cellSegments emits the directed crossings for the cell whose top-left
// corner is (i, j). Corner bits: TL=8, TR=4, BR=2, BL=1.
func (g grid) cellSegments(level float64, i, j int, emit func(segment)) {
	tl := g.value(i, j)
	tr := g.value(i+1, j)
	br := g.value(i+1, j+1)
	bl := g.value(i, j+1)
	if math.IsNaN(tl) || math.IsNaN(tr) || math.IsNaN(br) || math.IsNaN(bl) {
		return
	}

	var code int
	if tl >= level {
		code |= 8
	}
	if tr >= level {
		code |= 4
	}
	if br >= level {
		code |= 2
	}
	if bl >= level {
		code |= 1
	}
	if code == 0 || code == 15 {
		return
	}

	top := func() Point { return g.crossing(level, i, j, i+1, j) }
	right := func() Point { return g.crossing(level, i+1, j, i+1, j+1) }
	bottom := func() Point { return g.crossing(level, i, j+1, i+1, j+1) }
	left := func() Point { return g.crossing(level, i, j, i, j+1) }

	switch code {
	case 8: // TL
		emit(segment{left(), top()})
	case 4: // TR
		emit(segment{top(), right()})
	case 2: // BR
		emit(segment{right(), bottom()})
	case 1: // BL
		emit(segment{bottom(), left()})
	case 12: // TL TR
		emit(segment{left(), right()})
	case 6: // TR BR
		emit(segment{top(), bottom()})
	case 3: // BR BL
		emit(segment{right(), left()})
	case 9: // BL TL
		emit(segment{bottom(), top()})
	case 7: // all but TL
		emit(segment{top(), left()})
	case 11: // all but TR
		emit(segment{right(), top()})
	case 13: // all but BR
		emit(segment{bottom(), right()})
	case 14: // all but BL
		emit(segment{left(), bottom()})
	case 10: // TL BR saddle
		if (tl+tr+br+bl)/4 >= level {
			emit(segment{top(), right()})
			emit(segment{left(), bottom()})
		} else {
			emit(segment{left(), top()})
			emit(segment{right(), bottom()})
		}
	case 5: // TR BL saddle
		if (tl+tr+br+bl)/4 >= level {
			emit(segment{top(), left()})
			emit(segment{bottom(), right()})
		} else {
			emit(segment{top(), right()})
			emit(segment{bottom(), left()})
		}
	}
}

// collect runs marching squares over the cell range and returns all
// directed segments for the level. Padded grids include the border cells.
func (g grid) collect(level float64) []segment {
	lo := 0
	hiW := g.w - 1
	hiH := g.h - 1
	if g.padded {
		lo = -1
		hiW = g.w
		hiH = g.h
	}

	var segments []segment
	for j := lo; j < hiH; j++ {
		for i := lo; i < hiW; i++ {
			g.cellSegments(level, i, j, func(s segment) {
				if s.a == s.b {
					return
				}
				segments = append(segments, s)
			})
		}
	}
	return segments
}

// chain joins directed segments into paths by matching endpoints. Crossing
// points are computed identically in adjacent cells, so exact float keys
// match. Closed paths end with their first point repeated.
func chain(segments []segment) []Line {
	bySta := make(map[Point][]int, len(segments))
	byEnd := make(map[Point][]int, len(segments))
	for idx, s := range segments {
		bySta[s.a] = append(bySta[s.a], idx)
		byEnd[s.b] = append(byEnd[s.b], idx)
	}

	used := make([]bool, len(segments))
	take := func(m map[Point][]int, p Point) (int, bool) {
		for _, idx := range m[p] {
			if !used[idx] {
				used[idx] = true
				return idx, true
			}
		}
		return 0, false
	}

	var lines []Line
	for start := range segments {
		if used[start] {
			continue
		}
		used[start] = true

		path := Line{segments[start].a, segments[start].b}

		// Extend forward.
		for {
			idx, ok := take(bySta, path[len(path)-1])
			if !ok {
				break
			}
			path = append(path, segments[idx].b)
		}
		// Extend backward unless already closed.
		if path[0] != path[len(path)-1] {
			for {
				idx, ok := take(byEnd, path[0])
				if !ok {
					break
				}
				path = append(Line{segments[idx].a}, path...)
			}
		}
		lines = append(lines, path)
	}
	return lines
}

// scale maps grid coordinates onto tile-extent space.
func scale(lines []Line, gridW, gridH, extent int) []Line {
	sx := float64(extent) / float64(gridW-1)
	sy := float64(extent) / float64(gridH-1)
	for _, line := range lines {
		for i := range line {
			line[i].X *= sx
			line[i].Y *= sy
		}
	}
	return lines
}
