// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package mvt encodes named feature layers into Mapbox Vector Tiles and
// decodes existing tiles for the composite endpoint.
//
// Geometries arrive already in integer tile-extent space (0..4096), so
// encoding performs no projection. Layer order is preserved; MapLibre
// styles address layers by name but renderers honor encounter order for
// paint order.
package mvt

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

// DefaultExtent is the tile coordinate space used by every layer.
const DefaultExtent = 4096

// Feature is one geometry with string-keyed properties. Supported property
// values are strings, booleans and numbers; integers outside the signed
// 32-bit range are dropped because consumers reject them.
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

// Layer is a named, ordered set of features.
type Layer struct {
	Name     string
	Features []Feature
}

// Encode marshals the layers into a vector tile. Layers without features
// are skipped; an encoding with no remaining layers returns nil bytes so
// callers can treat it as an empty tile.
func Encode(layers []Layer) ([]byte, error) {
	out := make(mvt.Layers, 0, len(layers))
	for _, l := range layers {
		if len(l.Features) == 0 {
			continue
		}
		layer := &mvt.Layer{
			Name:    l.Name,
			Version: 2,
			Extent:  DefaultExtent,
		}
		for _, f := range l.Features {
			geometry := f.Geometry
			if poly, ok := geometry.(orb.Polygon); ok {
				// Outer rings get a positive shoelace area (y down), holes a negative one.
				wound := make(orb.Polygon, len(poly))
				for i, ring := range poly {
					area := 0.0
					for k := 0; k+1 < len(ring); k++ {
						area += ring[k][0]*ring[k+1][1] - ring[k+1][0]*ring[k][1]
					}
					if wound[i] = ring.Clone(); (area > 0) != (i == 0) {
						wound[i].Reverse()
					}
				}
				geometry = wound
			}
			gf := geojson.NewFeature(geometry)
			gf.Properties = sanitizeProperties(f.Properties)
			layer.Features = append(layer.Features, gf)
		}
		out = append(out, layer)
	}
	if len(out) == 0 {
		return nil, nil
	}
	data, err := mvt.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal vector tile: %w", err)
	}
	return data, nil
}

// Decode parses a vector tile, transparently handling gzip-compressed
// bodies as stored inside some archives.
func Decode(data []byte) ([]Layer, error) {
	var layers mvt.Layers
	var err error
	if isGzip(data) {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal vector tile: %w", err)
	}

	result := make([]Layer, 0, len(layers))
	for _, l := range layers {
		layer := Layer{Name: l.Name}
		for _, f := range l.Features {
			layer.Features = append(layer.Features, Feature{
				Geometry:   f.Geometry,
				Properties: f.Properties,
			})
		}
		result = append(result, layer)
	}
	return result, nil
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// sanitizeProperties filters values to the types the tile format carries.
func sanitizeProperties(props map[string]interface{}) geojson.Properties {
	out := make(geojson.Properties, len(props))
	for key, value := range props {
		switch v := value.(type) {
		case string, bool, float32, float64:
			out[key] = v
		case int:
			if inInt32Range(int64(v)) {
				out[key] = v
			}
		case int32:
			out[key] = v
		case int64:
			if inInt32Range(v) {
				out[key] = v
			}
		case uint32:
			if v <= math.MaxInt32 {
				out[key] = v
			}
		case uint64:
			if v <= math.MaxInt32 {
				out[key] = v
			}
		}
	}
	return out
}

func inInt32Range(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}

// Merge concatenates layer sets in order, for the composite endpoint. A
// later layer with a name already present keeps its own identity; names
// are not deduplicated because styles reference source layers uniquely.
func Merge(sets ...[]Layer) []Layer {
	var merged []Layer
	for _, set := range sets {
		merged = append(merged, set...)
	}
	return merged
}
