// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package terrain

import (
	"bytes"
	"fmt"
	"image"

	_ "image/png" // terrain-RGB tiles arrive as PNG

	_ "golang.org/x/image/webp" // or WebP, depending on the source

	"github.com/tomtom215/pelagos/internal/source"
)

// Decode parses a terrain-RGB raster tile into elevations using the
// source's encoding:
//
//	terrarium: elevation = R*256 + G + B/256 - 32768
//	mapbox:    elevation = -10000 + (R*65536 + G*256 + B) * 0.1
func Decode(data []byte, encoding source.Encoding) (HeightTile, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return HeightTile{}, fmt.Errorf("decode terrain tile: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	samples := make([]float32, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r16, g16, b16, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			r := float64(r16 >> 8)
			g := float64(g16 >> 8)
			b := float64(b16 >> 8)

			var elevation float64
			switch encoding {
			case source.EncodingTerrarium:
				elevation = r*256 + g + b/256 - 32768
			case source.EncodingMapbox:
				elevation = -10000 + (r*65536+g*256+b)*0.1
			default:
				return HeightTile{}, fmt.Errorf("source has no terrain encoding")
			}
			samples[y*w+x] = float32(elevation)
		}
	}
	return FromRaw(w, h, samples), nil
}
