// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package api

import "net/http"

type healthResponse struct {
	Status         string `json:"status"`
	Online         bool   `json:"online"`
	Utility        bool   `json:"utility"`
	ActiveDownload bool   `json:"activeDownload"`
}

// Health reports liveness plus the degraded-mode signals: upstream
// connectivity and extraction-utility availability. The endpoint always
// answers 200; serving continues in every degraded mode.
func (router *Router) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:         "ok",
		Online:         router.monitor != nil && router.monitor.Online(),
		Utility:        router.orchestrator.CheckUtility() == nil,
		ActiveDownload: router.orchestrator.Status().Active,
	}
	writeJSON(w, http.StatusOK, resp)
}
