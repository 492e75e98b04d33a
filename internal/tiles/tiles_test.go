// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package tiles

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectorReduction(t *testing.T) {
	tests := []struct {
		name string
		tile Tile
		want Tile
		ok   bool
	}{
		{"at sector zoom", Tile{6, 34, 22}, Tile{6, 34, 22}, true},
		{"one level down", Tile{7, 69, 45}, Tile{6, 34, 22}, true},
		{"deep zoom", Tile{14, 8840, 5632}, Tile{6, 34, 22}, true},
		{"origin", Tile{10, 0, 0}, Tile{6, 0, 0}, true},
		{"below sector zoom", Tile{5, 10, 10}, Tile{}, false},
		{"zoom zero", Tile{0, 0, 0}, Tile{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.tile.Sector()
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSectorReductionMatchesDirectFormula(t *testing.T) {
	for _, tile := range []Tile{
		{6, 0, 0}, {8, 132, 88}, {10, 500, 300}, {14, 16383, 16383}, {20, 1 << 19, 1 << 18},
	} {
		sector, ok := tile.Sector()
		require.True(t, ok)
		div := int(math.Pow(2, float64(tile.Z-SectorZoom)))
		assert.Equal(t, tile.X/div, sector.X)
		assert.Equal(t, tile.Y/div, sector.Y)
		assert.Equal(t, SectorZoom, sector.Z)

		// Reducing a sector tile again yields the same sector.
		again, ok := sector.Sector()
		require.True(t, ok)
		assert.Equal(t, sector, again)
	}
}

func TestToBbox(t *testing.T) {
	// The whole-world tile spans the full Mercator extent.
	world := ToBbox(Tile{0, 0, 0})
	assert.InDelta(t, -180, world.West, 1e-9)
	assert.InDelta(t, 180, world.East, 1e-9)
	assert.InDelta(t, 85.0511, world.North, 1e-3)
	assert.InDelta(t, -85.0511, world.South, 1e-3)

	for _, tile := range []Tile{
		{1, 0, 0}, {1, 1, 1}, {6, 34, 22}, {8, 132, 88}, {14, 8840, 5632},
	} {
		b := ToBbox(tile)
		assert.Less(t, b.West, b.East, "tile %v", tile)
		assert.Less(t, b.South, b.North, "tile %v", tile)
		assert.GreaterOrEqual(t, b.West, -180.0)
		assert.LessOrEqual(t, b.East, 180.0)
		assert.Greater(t, b.South, -85.06)
		assert.LessOrEqual(t, b.North, 85.06)
	}
}

func TestToBboxAdjacency(t *testing.T) {
	// Horizontally adjacent tiles share an edge.
	a := ToBbox(Tile{8, 132, 88})
	b := ToBbox(Tile{8, 133, 88})
	assert.InDelta(t, a.East, b.West, 1e-12)

	// Vertically adjacent tiles share an edge too.
	c := ToBbox(Tile{8, 132, 89})
	assert.InDelta(t, a.South, c.North, 1e-12)
}

func TestWrapX(t *testing.T) {
	assert.Equal(t, 255, WrapX(-1, 8))
	assert.Equal(t, 0, WrapX(256, 8))
	assert.Equal(t, 5, WrapX(5, 8))
	assert.Equal(t, 254, WrapX(-2, 8))
}

func TestInRangeY(t *testing.T) {
	assert.True(t, InRangeY(0, 8))
	assert.True(t, InRangeY(255, 8))
	assert.False(t, InRangeY(-1, 8))
	assert.False(t, InRangeY(256, 8))
}

func TestValid(t *testing.T) {
	assert.True(t, Tile{0, 0, 0}.Valid())
	assert.True(t, Tile{8, 255, 255}.Valid())
	assert.False(t, Tile{8, 256, 0}.Valid())
	assert.False(t, Tile{8, 0, -1}.Valid())
	assert.False(t, Tile{-1, 0, 0}.Valid())
}

func TestSectorDir(t *testing.T) {
	assert.Equal(t, "6_34_22", SectorDir(Tile{6, 34, 22}))
}
