// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package terrain decodes terrain-RGB raster tiles into elevation grids and
// provides the height-tile algebra the derived-tile generators are built
// on: neighbor composition, overzoom splitting, resampling, and
// materialization.
//
// A HeightTile is a width × height grid of float32 metres above the datum;
// NaN marks unknown samples. Most operations return lazy views over the
// parent tile; Materialize forces a view to a concrete array with a margin
// of extra pixels so later samples just outside the tile (needed for
// seamless contours at tile edges) stay O(1).
package terrain

import "math"

// NaN is the unknown-elevation marker.
var NaN = float32(math.NaN())

// HeightTile is an elevation raster addressed by integer pixel coordinates.
// The accessor tolerates coordinates outside [0, Width) × [0, Height) up to
// the margin provided by the view it wraps; reading further out is the
// caller's bug.
type HeightTile struct {
	Width  int
	Height int
	get    func(x, y int) float32
}

// New wraps an accessor function.
func New(width, height int, get func(x, y int) float32) HeightTile {
	return HeightTile{Width: width, Height: height, get: get}
}

// FromRaw wraps a row-major sample array. Out-of-range reads return NaN.
func FromRaw(width, height int, data []float32) HeightTile {
	return New(width, height, func(x, y int) float32 {
		if x < 0 || x >= width || y < 0 || y >= height {
			return NaN
		}
		return data[y*width+x]
	})
}

// Zero returns an all-zero tile; used for off-sphere neighbors north and
// south of the Mercator range.
func Zero(width, height int) HeightTile {
	return New(width, height, func(x, y int) float32 { return 0 })
}

// At samples one pixel.
func (t HeightTile) At(x, y int) float32 {
	return t.get(x, y)
}

// Combine builds a virtual view over a 3×3 neighborhood with the center
// tile in the middle. The view has the center tile's dimensions; sampling
// outside [0, Width) reaches into the surrounding tiles. A nil neighbor
// yields NaN. All nine tiles must share the center's dimensions.
func Combine(neighbors [9]*HeightTile) HeightTile {
	center := neighbors[4]
	w, h := center.Width, center.Height
	return New(w, h, func(x, y int) float32 {
		col, row := 1, 1
		if x < 0 {
			col = 0
		} else if x >= w {
			col = 2
		}
		if y < 0 {
			row = 0
		} else if y >= h {
			row = 2
		}
		n := neighbors[row*3+col]
		if n == nil {
			return NaN
		}
		return n.get(x-(col-1)*w, y-(row-1)*h)
	})
}

// Split extracts sub-tile (sx, sy) of a factor × factor subdivision. The
// view keeps the parent's margins: sampling below 0 or past the sub-tile
// width walks into the neighboring quadrants or, through a combined
// parent, into the neighboring tiles.
func (t HeightTile) Split(factor, sx, sy int) HeightTile {
	w := t.Width / factor
	h := t.Height / factor
	dx := w * sx
	dy := h * sy
	return New(w, h, func(x, y int) float32 {
		return t.get(x+dx, y+dy)
	})
}

// SubsamplePixelCenters linearly upsamples by factor, treating samples as
// pixel centers.
func (t HeightTile) SubsamplePixelCenters(factor int) HeightTile {
	lerp := func(a, b, f float32) float32 {
		if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
			return NaN
		}
		return a + (b-a)*f
	}
	return New(t.Width*factor, t.Height*factor, func(x, y int) float32 {
		mx := (float32(x)+0.5)/float32(factor) - 0.5
		my := (float32(y)+0.5)/float32(factor) - 0.5
		ox := int(floor(mx))
		oy := int(floor(my))
		fx := mx - float32(ox)
		fy := my - float32(oy)
		top := lerp(t.get(ox, oy), t.get(ox+1, oy), fx)
		bottom := lerp(t.get(ox, oy+1), t.get(ox+1, oy+1), fx)
		return lerp(top, bottom, fy)
	})
}

// AveragePixelCentersToGrid shifts pixel-centered samples onto grid
// corners by averaging the four surrounding pixels. The result is one
// sample wider and taller; the isoline generator requires corner-aligned
// grids.
func (t HeightTile) AveragePixelCentersToGrid() HeightTile {
	return New(t.Width+1, t.Height+1, func(x, y int) float32 {
		a := t.get(x-1, y-1)
		b := t.get(x, y-1)
		c := t.get(x-1, y)
		d := t.get(x, y)
		return (a + b + c + d) / 4
	})
}

// Materialize forces the view into a concrete array spanning
// [-buffer, Width+buffer) × [-buffer, Height+buffer).
func (t HeightTile) Materialize(buffer int) HeightTile {
	w, h := t.Width, t.Height
	stride := w + 2*buffer
	data := make([]float32, stride*(h+2*buffer))
	for y := -buffer; y < h+buffer; y++ {
		for x := -buffer; x < w+buffer; x++ {
			data[(y+buffer)*stride+x+buffer] = t.get(x, y)
		}
	}
	return New(w, h, func(x, y int) float32 {
		return data[(y+buffer)*stride+x+buffer]
	})
}

func floor(f float32) float32 {
	return float32(math.Floor(float64(f)))
}
