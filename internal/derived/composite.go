// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package derived

import (
	"context"

	"github.com/tomtom215/pelagos/internal/metrics"
	"github.com/tomtom215/pelagos/internal/mvt"
	"github.com/tomtom215/pelagos/internal/tilecache"
	"github.com/tomtom215/pelagos/internal/tiles"
)

// Composite merges the base map, the nautical overlay and every derived
// layer for one coordinate into a single vector tile. The terrain source
// name drives the derived layers; the base map and overlay sources come
// from the facade configuration.
//
// The cached composite is rebuilt when any contributing source's timestamp
// moves past it.
func (f *Facade) Composite(ctx context.Context, name string, t tiles.Tile) (Result, bool, error) {
	src, err := f.terrainSource(name)
	if err != nil {
		return Result{}, false, err
	}
	minZ, maxZ := f.zoomRange(src)
	if t.Z < minZ || t.Z > maxZ || !t.Valid() {
		return Result{}, false, nil
	}

	parent := tiles.Tile{Z: t.Z - f.overzoom, X: t.X >> uint(f.overzoom), Y: t.Y >> uint(f.overzoom)}
	newest := f.provider.ModTime(name, parent)
	for _, contributor := range []string{f.basemap, f.overlay} {
		if contributor == "" {
			continue
		}
		if ts := f.provider.ModTime(contributor, t); ts.After(newest) {
			newest = ts
		}
	}

	if cached, ok := f.cache.Get(tilecache.KindComposite, name, t.Z, t.X, t.Y); ok && !cached.ModTime.Before(newest) {
		body, readErr := cached.Bytes()
		if readErr == nil {
			metrics.DerivedCacheHits.WithLabelValues(string(tilecache.KindComposite)).Inc()
			if len(body) == 0 {
				return Result{}, false, nil
			}
			return Result{Bytes: body, ModTime: cached.ModTime}, true, nil
		}
	}

	// As with single-kind generation, a disconnect does not abort the merge.
	ctx = context.WithoutCancel(ctx)

	start := f.now()
	var sets [][]mvt.Layer

	for _, contributor := range []string{f.basemap, f.overlay} {
		if contributor == "" {
			continue
		}
		base, ok := f.sources.Get(contributor)
		if !ok || !base.Vector() {
			continue
		}
		res, ok, tileErr := f.provider.Tile(ctx, contributor, t)
		if tileErr != nil || !ok {
			continue
		}
		layers, decodeErr := mvt.Decode(res.Bytes)
		if decodeErr != nil {
			f.logger.Warn().Err(decodeErr).Str("source", contributor).Msg("composite: undecodable base tile")
			continue
		}
		sets = append(sets, layers)
	}

	// The per-kind generators cache their own results, so a composite
	// rebuild reuses any still-fresh derived tiles.
	for _, part := range []func(context.Context, string, tiles.Tile) (Result, bool, error){
		f.Contours, f.Bathymetry, f.Soundings,
	} {
		res, ok, partErr := part(ctx, name, t)
		if partErr != nil || !ok {
			continue
		}
		layers, decodeErr := mvt.Decode(res.Bytes)
		if decodeErr != nil {
			continue
		}
		sets = append(sets, layers)
	}

	body, err := mvt.Encode(mvt.Merge(sets...))
	if err != nil {
		return Result{}, false, err
	}
	metrics.DerivedGenerations.WithLabelValues(string(tilecache.KindComposite)).Inc()
	metrics.DerivedGenerationDuration.WithLabelValues(string(tilecache.KindComposite)).
		Observe(f.now().Sub(start).Seconds())

	if err := f.cache.Put(tilecache.KindComposite, name, t.Z, t.X, t.Y, body); err != nil {
		f.logger.Warn().Err(err).Msg("composite cache write failed")
	}
	if len(body) == 0 {
		return Result{}, false, nil
	}
	return Result{Bytes: body, ModTime: f.now()}, true, nil
}
