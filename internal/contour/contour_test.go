// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package contour

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/pelagos/internal/terrain"
)

func gridOf(w, h int, f func(x, y int) float64) terrain.HeightTile {
	data := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = float32(f(x, y))
		}
	}
	return terrain.FromRaw(w, h, data)
}

// coneGrid has elevation -r (r = distance from the center), the synthetic
// bathymetry bowl from the depth-area scenario.
func coneGrid(size int) terrain.HeightTile {
	c := float64(size-1) / 2
	return gridOf(size, size, func(x, y int) float64 {
		return -math.Hypot(float64(x)-c, float64(y)-c)
	})
}

func TestIntervalForZoom(t *testing.T) {
	tests := []struct {
		z    int
		want float64
	}{
		{14, 10}, {15, 10}, {13, 20}, {12, 50}, {11, 100}, {10, 100},
		{9, 200}, {8, 200}, {7, 500}, {0, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IntervalForZoom(tt.z), "zoom %d", tt.z)
	}
}

func TestLevelsInRange(t *testing.T) {
	assert.Equal(t, []float64{100, 200, 300}, LevelsInRange(50, 320, 100))
	assert.Equal(t, []float64{0}, LevelsInRange(-10, 40, 50))
	assert.Empty(t, LevelsInRange(10, 5, 50))
	assert.Empty(t, LevelsInRange(0, 10, 0))
}

func TestRange(t *testing.T) {
	g := gridOf(4, 4, func(x, y int) float64 { return float64(x - y) })
	min, max, ok := Range(g)
	require.True(t, ok)
	assert.Equal(t, -3.0, min)
	assert.Equal(t, 3.0, max)

	nan := terrain.FromRaw(2, 2, []float32{terrain.NaN, terrain.NaN, terrain.NaN, terrain.NaN})
	_, _, ok = Range(nan)
	assert.False(t, ok)
}

func TestIsolinesPlane(t *testing.T) {
	// A plane rising along x crosses level 2 in a straight vertical line.
	g := gridOf(5, 5, func(x, y int) float64 { return float64(x) })
	lines := Isolines(g, []float64{2}, 4096)

	require.Len(t, lines[2], 1)
	line := lines[2][0]
	require.GreaterOrEqual(t, len(line), 2)
	for _, p := range line {
		assert.InDelta(t, 2048, p.X, 0.01) // x=2 of 4 scaled to extent
	}
	// The line spans the full tile height.
	ys := []float64{line[0].Y, line[len(line)-1].Y}
	assert.InDelta(t, 0, math.Min(ys[0], ys[1]), 0.01)
	assert.InDelta(t, 4096, math.Max(ys[0], ys[1]), 0.01)
}

func TestIsolinesClosedAroundPeak(t *testing.T) {
	// A peak in the middle yields a closed contour ring.
	g := gridOf(9, 9, func(x, y int) float64 {
		return 10 - math.Hypot(float64(x)-4, float64(y)-4)
	})
	lines := Isolines(g, []float64{8}, 4096)

	require.Len(t, lines[8], 1)
	line := lines[8][0]
	assert.Equal(t, line[0], line[len(line)-1], "contour around a peak must close")
}

func TestIsolinesEmptyLevel(t *testing.T) {
	g := gridOf(4, 4, func(x, y int) float64 { return 0 })
	lines := Isolines(g, []float64{100}, 4096)
	assert.Empty(t, lines)
}

func TestIsobandsConeScenario(t *testing.T) {
	g := coneGrid(65)
	// Configured depths 2, 5, 10 become negative levels.
	bands := Isobands(g, []float64{-10, -5, -2}, 4096)

	require.Len(t, bands, 2)

	deep := bands[0]
	shallow := bands[1]
	assert.Equal(t, -10.0, deep.Lower)
	assert.Equal(t, -5.0, deep.Upper)
	assert.Equal(t, -5.0, shallow.Lower)
	assert.Equal(t, -2.0, shallow.Upper)

	for _, band := range bands {
		require.Len(t, band.Polygons, 1, "band %v..%v", band.Lower, band.Upper)
		poly := band.Polygons[0]

		// Outer rings are clockwise in tile coordinates.
		assert.Negative(t, SignedArea(poly.Outer))
		assert.Equal(t, poly.Outer[0], poly.Outer[len(poly.Outer)-1])

		// The annulus has exactly one hole, wound the other way.
		require.Len(t, poly.Holes, 1)
		assert.Positive(t, SignedArea(poly.Holes[0]))

		// At least one depth-contour label line per band.
		assert.NotEmpty(t, band.LabelLines)
	}
}

func TestIsobandsTotality(t *testing.T) {
	g := coneGrid(65)
	bands := Isobands(g, []float64{-10, -5, -2}, 4096)
	require.Len(t, bands, 2)

	// Sample tile-space points at known radii; each point between the
	// supplied minimum and maximum level must fall in exactly one band.
	scale := 4096.0 / 64.0
	center := 32.0
	probes := []struct {
		radius float64
		want   int // band index, -1 when outside all bands
	}{
		{3, 1},   // -3 is in [-5, -2)
		{4, 1},   // -4
		{6, 0},   // -6 in [-10, -5)
		{9, 0},   // -9
		{12, -1}, // deeper than the deepest level
		{1, -1},  // shallower than the shallowest level
	}
	for _, probe := range probes {
		p := Point{X: (center + probe.radius) * scale, Y: center * scale}
		in := -1
		for i, band := range bands {
			for _, poly := range band.Polygons {
				if Contains(poly.Outer, p) {
					inHole := false
					for _, hole := range poly.Holes {
						if Contains(hole, p) {
							inHole = true
						}
					}
					if !inHole {
						in = i
					}
				}
			}
		}
		assert.Equal(t, probe.want, in, "radius %v", probe.radius)
	}
}

func TestIsobandsClipAtBorder(t *testing.T) {
	// A plane rising along x: the band region touches the tile border, so
	// its ring closes along the border and the border stretches are not
	// label lines.
	g := gridOf(5, 5, func(x, y int) float64 { return float64(x) })
	bands := Isobands(g, []float64{1, 4}, 4096)

	require.Len(t, bands, 1)
	band := bands[0]
	require.NotEmpty(t, band.Polygons)
	assert.Equal(t, 1.0, band.Lower)
	assert.Equal(t, 4.0, band.Upper)

	// Label lines exist (the x=1 crossing) and contain no border points.
	require.NotEmpty(t, band.LabelLines)
	for _, line := range band.LabelLines {
		for _, p := range line {
			assert.Greater(t, p.X, 0.0)
			assert.Less(t, p.X, 4096.0)
			assert.Greater(t, p.Y, 0.0)
			assert.Less(t, p.Y, 4096.0)
		}
	}
}

func TestIsobandsNeedTwoLevels(t *testing.T) {
	g := coneGrid(17)
	assert.Nil(t, Isobands(g, []float64{-5}, 4096))
	assert.Nil(t, Isobands(g, nil, 4096))
}

func TestSignedAreaAndContains(t *testing.T) {
	// Clockwise square in y-down tile coordinates.
	cw := Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	assert.Negative(t, SignedArea(cw))
	assert.Positive(t, SignedArea(reverse(cw)))

	assert.True(t, Contains(cw, Point{5, 5}))
	assert.False(t, Contains(cw, Point{15, 5}))
}

func TestSplitAtExtent(t *testing.T) {
	ring := Ring{
		{0, 100}, {50, 100}, {60, 120}, {0, 130}, // border, interior, interior, border
		{0, 200}, {70, 210}, {0, 220},
		{0, 100},
	}
	lines := splitAtExtent(ring, 4096)

	require.Len(t, lines, 1)
	assert.Equal(t, Line{{50, 100}, {60, 120}}, lines[0])
}
