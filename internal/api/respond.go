// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pelagos/internal/logging"
)

// Cache-Control values per response class.
const (
	cacheControlTiles    = "public, max-age=86400"
	cacheControlTileJSON = "public, max-age=3600"
	cacheControlStyles   = "public, max-age=3600"
)

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		logging.Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeTile sends tile bytes with the source's content type, or 204 when
// the tile is absent. An empty body with 200 would make MapLibre retry;
// 204 tells it the tile is legitimately blank.
func writeTile(w http.ResponseWriter, contentType string, body []byte) {
	if len(body) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControlTiles)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
