// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/pelagos/internal/download"
	"github.com/tomtom215/pelagos/internal/logging"
)

// ListSectors reports the committed offline sectors. With the extraction
// utility missing, downloads are disabled and the endpoint answers 503 so
// clients can grey out the offline UI.
func (router *Router) ListSectors(w http.ResponseWriter, r *http.Request) {
	if err := router.orchestrator.CheckUtility(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "extraction utility not available")
		return
	}
	infos, err := router.orchestrator.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sector listing failed")
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// EnqueueSectors accepts ?tile=z/x/y[,z/x/y...] and starts downloads.
func (router *Router) EnqueueSectors(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tile")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing tile parameter")
		return
	}
	ids := strings.Split(raw, ",")
	for _, id := range ids {
		if strings.Contains(id, "..") || strings.HasPrefix(strings.TrimSpace(id), "/") {
			logging.Warn().Str("tile", id).Str("remote", r.RemoteAddr).Msg("path traversal refused")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	}

	if err := router.orchestrator.Enqueue(ids); err != nil {
		switch {
		case errors.Is(err, download.ErrUtilityMissing):
			writeError(w, http.StatusServiceUnavailable, "extraction utility not available")
		case errors.Is(err, download.ErrInvalidSector):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "enqueue failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, router.orchestrator.Status())
}

// DownloadStatus reports queue, outcomes and live progress.
func (router *Router) DownloadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, router.orchestrator.Status())
}

// CancelDownloads aborts the active download and clears the queue.
func (router *Router) CancelDownloads(w http.ResponseWriter, r *http.Request) {
	router.orchestrator.Cancel()
	writeJSON(w, http.StatusOK, router.orchestrator.Status())
}

// DeleteSector removes one committed sector.
func (router *Router) DeleteSector(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("tile")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing tile parameter")
		return
	}
	if err := router.orchestrator.Delete(id); err != nil {
		switch {
		case errors.Is(err, download.ErrForbidden):
			logging.Warn().Str("tile", id).Str("remote", r.RemoteAddr).Msg("path traversal refused")
			writeError(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, download.ErrInvalidSector):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "delete failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Tile clients are cross-origin; the endpoint carries no
	// state-changing capability.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// DownloadProgress streams orchestrator status frames over a websocket
// until the client disconnects.
func (router *Router) DownloadProgress(w http.ResponseWriter, r *http.Request) {
	conn, err := progressUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, cancel := router.orchestrator.Subscribe()
	defer cancel()

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	// Initial snapshot, then every update.
	if err := conn.WriteJSON(router.orchestrator.Status()); err != nil {
		return
	}
	for {
		select {
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(status); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
