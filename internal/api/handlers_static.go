// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package api

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/pelagos/internal/logging"
)

var (
	styleNamePattern  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	glyphRangePattern = regexp.MustCompile(`^\d+-\d+$`)
)

// serveStatic sends a file from the styles directory after confirming the
// resolved path stays inside it.
func (router *Router) serveStatic(w http.ResponseWriter, r *http.Request, rel, contentType string) {
	root, err := filepath.Abs(router.stylesDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "styles directory unavailable")
		return
	}

	path := filepath.Join(root, filepath.FromSlash(rel))
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolvedRoot = root
	}
	if relPath, relErr := filepath.Rel(resolvedRoot, resolved); relErr != nil ||
		relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		logging.Warn().Str("path", rel).Str("remote", r.RemoteAddr).Msg("path traversal refused")
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", cacheControlStyles)
	http.ServeFile(w, r, resolved)
}

// Style serves a MapLibre style document.
func (router *Router) Style(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !styleNamePattern.MatchString(name) {
		writeError(w, http.StatusBadRequest, "bad style name")
		return
	}
	router.serveStatic(w, r, name+".json", "application/json")
}

// Sprite serves sprite sheets and metadata under the styles directory.
func (router *Router) Sprite(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	if rel == "" || strings.Contains(rel, "..") {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	contentType := ""
	switch {
	case strings.HasSuffix(rel, ".json"):
		contentType = "application/json"
	case strings.HasSuffix(rel, ".png"):
		contentType = "image/png"
	}
	router.serveStatic(w, r, filepath.Join("sprites", rel), contentType)
}

// Glyphs serves font glyph ranges.
func (router *Router) Glyphs(w http.ResponseWriter, r *http.Request) {
	fontstack := chi.URLParam(r, "fontstack")
	glyphRange := chi.URLParam(r, "range")
	if !styleNamePattern.MatchString(strings.ReplaceAll(fontstack, " ", "_")) {
		writeError(w, http.StatusBadRequest, "bad fontstack")
		return
	}
	if !glyphRangePattern.MatchString(glyphRange) {
		writeError(w, http.StatusBadRequest, "bad glyph range")
		return
	}
	router.serveStatic(w, r,
		filepath.Join("glyphs", fontstack, glyphRange+".pbf"),
		"application/x-protobuf")
}
