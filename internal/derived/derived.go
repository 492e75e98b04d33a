// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package derived synthesizes vector tiles from raw terrain rasters:
// contour lines, bathymetry depth areas with depth-contour label lines,
// spot-depth soundings, and a composite tile merging base map, nautical
// overlay and all derived layers.
//
// Derived tiles share the filesystem tile cache. A cached derived tile is
// served as long as it is at least as new as the underlying source tile;
// when the source tile's timestamp moves past it, the next request
// regenerates. Client disconnects do not abort generation; the bytes still
// land in cache for the next request.
package derived

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/tomtom215/pelagos/internal/contour"
	"github.com/tomtom215/pelagos/internal/logging"
	"github.com/tomtom215/pelagos/internal/metrics"
	"github.com/tomtom215/pelagos/internal/mvt"
	"github.com/tomtom215/pelagos/internal/resolver"
	"github.com/tomtom215/pelagos/internal/soundings"
	"github.com/tomtom215/pelagos/internal/source"
	"github.com/tomtom215/pelagos/internal/terrain"
	"github.com/tomtom215/pelagos/internal/tilecache"
	"github.com/tomtom215/pelagos/internal/tiles"
)

// MaxZoom caps derived-tile generation; beyond it the upsampled DEM adds
// no detail.
const MaxZoom = 14

// DefaultOverzoom shifts DEM fetches one zoom level up, so nine source
// tiles cover the derived tile and its seams.
const DefaultOverzoom = 1

// DefaultDepths are the bathymetry band boundaries in positive metres.
var DefaultDepths = []float64{2, 5, 10, 20, 50}

// TileProvider is the capability the facade needs from the resolver; the
// small interface keeps the package dependency graph acyclic.
type TileProvider interface {
	Tile(ctx context.Context, name string, t tiles.Tile) (resolver.Result, bool, error)
	ModTime(name string, t tiles.Tile) time.Time
}

// Config parameterizes the facade.
type Config struct {
	Sources  *source.Sources
	Provider TileProvider
	Cache    *tilecache.Cache

	// Depths are positive bathymetry levels; converted to negative
	// elevations internally. Nil uses DefaultDepths.
	Depths []float64

	// Overzoom defaults to DefaultOverzoom.
	Overzoom int

	// BasemapSource and OverlaySource name the vector sources merged into
	// composite tiles. Empty names are skipped.
	BasemapSource string
	OverlaySource string
}

// Facade generates and caches derived tiles.
type Facade struct {
	sources  *source.Sources
	provider TileProvider
	cache    *tilecache.Cache
	levels   []float64 // negative, ascending
	overzoom int
	basemap  string
	overlay  string
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a facade.
func New(cfg Config) *Facade {
	depths := cfg.Depths
	if len(depths) == 0 {
		depths = DefaultDepths
	}
	levels := make([]float64, 0, len(depths))
	for _, d := range depths {
		levels = append(levels, -math.Abs(d))
	}
	// Ascending order: deepest first.
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		if levels[i] > levels[j] {
			levels[i], levels[j] = levels[j], levels[i]
		}
	}

	overzoom := cfg.Overzoom
	if overzoom <= 0 {
		overzoom = DefaultOverzoom
	}
	return &Facade{
		sources:  cfg.Sources,
		provider: cfg.Provider,
		cache:    cfg.Cache,
		levels:   levels,
		overzoom: overzoom,
		basemap:  cfg.BasemapSource,
		overlay:  cfg.OverlaySource,
		logger:   logging.With().Str("component", "derived").Logger(),
		now:      time.Now,
	}
}

// Result is a derived tile body with its cache timestamp.
type Result struct {
	Bytes   []byte
	ModTime time.Time
}

// zoomRange gates derived requests for a terrain source.
func (f *Facade) zoomRange(src source.Source) (int, int) {
	min := src.MinZoom
	if f.overzoom == 1 {
		min++
	}
	return min, MaxZoom
}

// terrainSource validates that name refers to a terrain-RGB source.
func (f *Facade) terrainSource(name string) (source.Source, error) {
	src, ok := f.sources.Get(name)
	if !ok {
		return source.Source{}, resolver.ErrUnknownSource
	}
	if src.Encoding == source.EncodingNone {
		return source.Source{}, fmt.Errorf("%w: %q has no terrain encoding", resolver.ErrUnknownSource, name)
	}
	return src, nil
}

// generate runs the shared cache-or-regenerate contract for one kind.
func (f *Facade) generate(ctx context.Context, kind tilecache.Kind, name string, t tiles.Tile,
	src source.Source, build func(grid terrain.HeightTile) ([]byte, error)) (Result, bool, error) {

	minZ, maxZ := f.zoomRange(src)
	if t.Z < minZ || t.Z > maxZ || !t.Valid() {
		return Result{}, false, nil
	}

	parent := tiles.Tile{Z: t.Z - f.overzoom, X: t.X >> uint(f.overzoom), Y: t.Y >> uint(f.overzoom)}
	sourceTime := f.provider.ModTime(name, parent)

	if cached, ok := f.cache.Get(kind, name, t.Z, t.X, t.Y); ok && !cached.ModTime.Before(sourceTime) {
		body, err := cached.Bytes()
		if err == nil {
			metrics.DerivedCacheHits.WithLabelValues(string(kind)).Inc()
			if len(body) == 0 {
				// A cached empty marker: previously generated, no geometry.
				return Result{}, false, nil
			}
			return Result{Bytes: body, ModTime: cached.ModTime}, true, nil
		}
	}

	// Generation outlives the request: a client disconnect must not abort
	// work whose result lands in the cache anyway.
	ctx = context.WithoutCancel(ctx)

	start := f.now()
	grid, ok, err := terrain.LoadNeighborhood(ctx, f.fetcher(name), src.Encoding, t, f.overzoom)
	if err != nil {
		return Result{}, false, err
	}
	if !ok {
		return Result{}, false, nil
	}

	body, err := build(grid)
	if err != nil {
		return Result{}, false, err
	}
	metrics.DerivedGenerations.WithLabelValues(string(kind)).Inc()
	metrics.DerivedGenerationDuration.WithLabelValues(string(kind)).Observe(f.now().Sub(start).Seconds())

	// Empty geometry is cached as an empty file so the next request is one
	// stat away, then reported as absent.
	if err := f.cache.Put(kind, name, t.Z, t.X, t.Y, body); err != nil {
		f.logger.Warn().Err(err).Str("kind", string(kind)).Msg("derived cache write failed")
	}
	if len(body) == 0 {
		return Result{}, false, nil
	}
	return Result{Bytes: body, ModTime: f.now()}, true, nil
}

// fetcher adapts the resolver to the terrain loader.
func (f *Facade) fetcher(name string) terrain.Fetcher {
	return func(ctx context.Context, t tiles.Tile) ([]byte, bool, error) {
		res, ok, err := f.provider.Tile(ctx, name, t)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		return res.Bytes, true, nil
	}
}

// Contours produces elevation contour lines for a terrain source.
func (f *Facade) Contours(ctx context.Context, name string, t tiles.Tile) (Result, bool, error) {
	src, err := f.terrainSource(name)
	if err != nil {
		return Result{}, false, err
	}
	return f.generate(ctx, tilecache.KindContours, name, t, src, func(grid terrain.HeightTile) ([]byte, error) {
		interval := contour.IntervalForZoom(t.Z)
		min, max, ok := contour.Range(grid)
		if !ok {
			return nil, nil
		}
		levels := contour.LevelsInRange(min, max, interval)
		lines := contour.Isolines(grid, levels, mvt.DefaultExtent)

		var features []mvt.Feature
		for _, level := range levels {
			for _, line := range lines[level] {
				features = append(features, mvt.Feature{
					Geometry: toLineString(line),
					Properties: map[string]interface{}{
						"elevation": level,
						"index":     indexForLevel(level, interval),
					},
				})
			}
		}
		return mvt.Encode([]mvt.Layer{{Name: "contours", Features: features}})
	})
}

// indexForLevel marks major contours so styles can emphasize every fifth
// line.
func indexForLevel(level, interval float64) int {
	if interval <= 0 {
		return 0
	}
	n := int(math.Round(level / interval))
	if n%5 == 0 {
		return 5
	}
	return 1
}

// Bathymetry produces depth-area polygons and depth-contour label lines.
func (f *Facade) Bathymetry(ctx context.Context, name string, t tiles.Tile) (Result, bool, error) {
	src, err := f.terrainSource(name)
	if err != nil {
		return Result{}, false, err
	}
	return f.generate(ctx, tilecache.KindBathymetry, name, t, src, func(grid terrain.HeightTile) ([]byte, error) {
		bands := contour.Isobands(grid, f.levels, mvt.DefaultExtent)
		if len(bands) == 0 {
			return nil, nil
		}

		var areas, lines []mvt.Feature
		for _, band := range bands {
			for _, poly := range band.Polygons {
				areas = append(areas, mvt.Feature{
					Geometry: toPolygon(poly),
					Properties: map[string]interface{}{
						"minDepth": math.Abs(band.Upper),
						"maxDepth": math.Abs(band.Lower),
					},
				})
			}
			for _, line := range band.LabelLines {
				lines = append(lines, mvt.Feature{
					Geometry:   toLineString(line),
					Properties: map[string]interface{}{"depth": math.Abs(band.Lower)},
				})
			}
		}
		return mvt.Encode([]mvt.Layer{
			{Name: "depth_areas", Features: areas},
			{Name: "depth_contours", Features: lines},
		})
	})
}

// Soundings produces spot-depth point features.
func (f *Facade) Soundings(ctx context.Context, name string, t tiles.Tile) (Result, bool, error) {
	src, err := f.terrainSource(name)
	if err != nil {
		return Result{}, false, err
	}
	return f.generate(ctx, tilecache.KindSoundings, name, t, src, func(grid terrain.HeightTile) ([]byte, error) {
		points := soundings.Generate(grid, t, mvt.DefaultExtent)
		if len(points) == 0 {
			return nil, nil
		}
		features := make([]mvt.Feature, 0, len(points))
		for _, s := range points {
			features = append(features, mvt.Feature{
				Geometry:   orb.Point{float64(s.X), float64(s.Y)},
				Properties: map[string]interface{}{"depth": s.Depth},
			})
		}
		return mvt.Encode([]mvt.Layer{{Name: "soundings", Features: features}})
	})
}

func toLineString(line contour.Line) orb.LineString {
	ls := make(orb.LineString, 0, len(line))
	for _, p := range line {
		ls = append(ls, orb.Point{math.Round(p.X), math.Round(p.Y)})
	}
	return ls
}

func toRing(r contour.Ring) orb.Ring {
	ring := make(orb.Ring, 0, len(r))
	for _, p := range r {
		ring = append(ring, orb.Point{math.Round(p.X), math.Round(p.Y)})
	}
	return ring
}

func toPolygon(p contour.Polygon) orb.Polygon {
	poly := orb.Polygon{toRing(p.Outer)}
	for _, hole := range p.Holes {
		poly = append(poly, toRing(hole))
	}
	return poly
}
