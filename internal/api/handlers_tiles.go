// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/pelagos/internal/derived"
	"github.com/tomtom215/pelagos/internal/resolver"
	"github.com/tomtom215/pelagos/internal/tiles"
)

// tileJSON is the TileJSON 3.0 document served for each source.
type tileJSON struct {
	TileJSON     string        `json:"tilejson"`
	Name         string        `json:"name"`
	Tiles        []string      `json:"tiles"`
	MinZoom      int           `json:"minzoom"`
	MaxZoom      int           `json:"maxzoom"`
	Format       string        `json:"format,omitempty"`
	Attribution  string        `json:"attribution,omitempty"`
	VectorLayers []vectorLayer `json:"vector_layers,omitempty"`
}

type vectorLayer struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// baseURL reconstructs the externally visible prefix from the request.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// TileJSON serves the metadata document for a base source.
func (router *Router) TileJSON(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	src, ok := router.sources.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}

	doc := tileJSON{
		TileJSON:    "3.0.0",
		Name:        src.Name,
		Tiles:       []string{fmt.Sprintf("%s/tiles/%s/{z}/{x}/{y}.%s", baseURL(r), src.Name, src.Format)},
		MinZoom:     src.MinZoom,
		MaxZoom:     src.MaxZoom,
		Format:      src.Format,
		Attribution: src.Attribution,
	}
	w.Header().Set("Cache-Control", cacheControlTileJSON)
	writeJSON(w, http.StatusOK, doc)
}

// Tile serves one tile through the resolver.
func (router *Router) Tile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	src, ok := router.sources.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}
	z, x, y, ok := pathTile(r)
	if !ok || !(tiles.Tile{Z: z, X: x, Y: y}).Valid() {
		writeError(w, http.StatusBadRequest, "bad tile coordinates")
		return
	}
	if ext := chi.URLParam(r, "ext"); ext != src.Format {
		writeError(w, http.StatusBadRequest, "tile extension does not match source format")
		return
	}

	res, found, err := router.resolver.Tile(r.Context(), name, tiles.Tile{Z: z, X: x, Y: y})
	if err != nil {
		if errors.Is(err, resolver.ErrUnknownSource) {
			writeError(w, http.StatusNotFound, "unknown source")
			return
		}
		writeError(w, http.StatusInternalServerError, "tile resolution failed")
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeTile(w, src.ContentType, res.Bytes)
}

// derivedLayers describes the vector layers each derived kind emits.
var derivedLayers = map[string][]vectorLayer{
	"contours": {
		{ID: "contours", Fields: map[string]string{"elevation": "Number", "index": "Number"}},
	},
	"bathymetry": {
		{ID: "depth_areas", Fields: map[string]string{"minDepth": "Number", "maxDepth": "Number"}},
		{ID: "depth_contours", Fields: map[string]string{"depth": "Number"}},
	},
	"soundings": {
		{ID: "soundings", Fields: map[string]string{"depth": "Number"}},
	},
	"composite": {
		{ID: "contours", Fields: map[string]string{"elevation": "Number", "index": "Number"}},
		{ID: "depth_areas", Fields: map[string]string{"minDepth": "Number", "maxDepth": "Number"}},
		{ID: "depth_contours", Fields: map[string]string{"depth": "Number"}},
		{ID: "soundings", Fields: map[string]string{"depth": "Number"}},
	},
}

// DerivedTileJSON serves metadata for a derived tile set.
func (router *Router) DerivedTileJSON(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "source")
		src, ok := router.sources.Get(name)
		if !ok || src.Encoding == "" {
			writeError(w, http.StatusNotFound, "unknown source")
			return
		}

		doc := tileJSON{
			TileJSON:     "3.0.0",
			Name:         fmt.Sprintf("%s-%s", src.Name, kind),
			Tiles:        []string{fmt.Sprintf("%s/%s/%s/{z}/{x}/{y}.pbf", baseURL(r), kind, src.Name)},
			MinZoom:      src.MinZoom + derived.DefaultOverzoom,
			MaxZoom:      derived.MaxZoom,
			Format:       "pbf",
			Attribution:  src.Attribution,
			VectorLayers: derivedLayers[kind],
		}
		w.Header().Set("Cache-Control", cacheControlTileJSON)
		writeJSON(w, http.StatusOK, doc)
	}
}

// DerivedTile serves a generated tile of the given kind.
func (router *Router) DerivedTile(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "source")
		z, x, y, ok := pathTile(r)
		if !ok || !(tiles.Tile{Z: z, X: x, Y: y}).Valid() {
			writeError(w, http.StatusBadRequest, "bad tile coordinates")
			return
		}
		coord := tiles.Tile{Z: z, X: x, Y: y}

		var res derived.Result
		var found bool
		var err error
		switch kind {
		case "contours":
			res, found, err = router.facade.Contours(r.Context(), name, coord)
		case "bathymetry":
			res, found, err = router.facade.Bathymetry(r.Context(), name, coord)
		case "soundings":
			res, found, err = router.facade.Soundings(r.Context(), name, coord)
		case "composite":
			res, found, err = router.facade.Composite(r.Context(), name, coord)
		default:
			writeError(w, http.StatusNotFound, "unknown derived kind")
			return
		}

		if err != nil {
			if errors.Is(err, resolver.ErrUnknownSource) {
				writeError(w, http.StatusNotFound, "unknown source")
				return
			}
			writeError(w, http.StatusInternalServerError, "derived tile generation failed")
			return
		}
		if !found {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeTile(w, "application/x-protobuf", res.Bytes)
	}
}
