// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package mvt

import (
	"bytes"
	"compress/gzip"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointFeature(x, y float64, props map[string]interface{}) Feature {
	return Feature{Geometry: orb.Point{x, y}, Properties: props}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	layers := []Layer{
		{
			Name: "soundings",
			Features: []Feature{
				pointFeature(100, 200, map[string]interface{}{"depth": 12.5}),
				pointFeature(300, 400, map[string]interface{}{"depth": 3.0}),
			},
		},
		{
			Name: "depth_contours",
			Features: []Feature{
				{
					Geometry:   orb.LineString{{0, 0}, {1000, 1000}, {2000, 1500}},
					Properties: map[string]interface{}{"depth": 5},
				},
			},
		},
	}

	data, err := Encode(layers)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	// Layer order is preserved.
	assert.Equal(t, "soundings", decoded[0].Name)
	assert.Equal(t, "depth_contours", decoded[1].Name)
	assert.Len(t, decoded[0].Features, 2)
	require.Len(t, decoded[1].Features, 1)

	line, ok := decoded[1].Features[0].Geometry.(orb.LineString)
	require.True(t, ok)
	assert.Len(t, line, 3)
}

func TestEncodePolygonWithHole(t *testing.T) {
	outer := orb.Ring{{0, 0}, {0, 1000}, {1000, 1000}, {1000, 0}, {0, 0}}
	hole := orb.Ring{{400, 400}, {600, 400}, {600, 600}, {400, 600}, {400, 400}}
	layers := []Layer{{
		Name: "depth_areas",
		Features: []Feature{{
			Geometry:   orb.Polygon{outer, hole},
			Properties: map[string]interface{}{"depth": 10},
		}},
	}}

	data, err := Encode(layers)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	poly, ok := decoded[0].Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Len(t, poly, 2)
}

func TestEncodeEmptyIsNil(t *testing.T) {
	data, err := Encode([]Layer{{Name: "empty"}})
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = Encode(nil)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestPropertySanitization(t *testing.T) {
	layers := []Layer{{
		Name: "test",
		Features: []Feature{pointFeature(1, 1, map[string]interface{}{
			"name":     "shoal",
			"depth":    4.5,
			"visible":  true,
			"count":    int64(7),
			"too_big":  int64(math.MaxInt32) + 1,
			"too_low":  int64(math.MinInt32) - 1,
			"channels": []string{"not", "supported"},
		})},
	}}

	data, err := Encode(layers)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	props := decoded[0].Features[0].Properties
	assert.Equal(t, "shoal", props["name"])
	assert.Equal(t, 4.5, props["depth"])
	assert.Equal(t, true, props["visible"])
	assert.Contains(t, props, "count")
	assert.NotContains(t, props, "too_big")
	assert.NotContains(t, props, "too_low")
	assert.NotContains(t, props, "channels")
}

func TestDecodeGzipped(t *testing.T) {
	data, err := Encode([]Layer{{
		Name:     "base",
		Features: []Feature{pointFeature(5, 5, map[string]interface{}{"kind": "buoy"})},
	}})
	require.NoError(t, err)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err = gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	decoded, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, "base", decoded[0].Name)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not protobuf"))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	a := []Layer{{Name: "osm"}, {Name: "seamap"}}
	b := []Layer{{Name: "contours"}}
	merged := Merge(a, b, nil)
	require.Len(t, merged, 3)
	assert.Equal(t, "osm", merged[0].Name)
	assert.Equal(t, "contours", merged[2].Name)
}
