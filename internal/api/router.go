// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package api provides HTTP routing and handlers using the Chi router.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/pelagos/internal/connectivity"
	"github.com/tomtom215/pelagos/internal/derived"
	"github.com/tomtom215/pelagos/internal/download"
	"github.com/tomtom215/pelagos/internal/resolver"
	"github.com/tomtom215/pelagos/internal/source"
)

// Router wires the core components into HTTP handlers.
type Router struct {
	sources      *source.Sources
	resolver     *resolver.Resolver
	facade       *derived.Facade
	orchestrator *download.Orchestrator
	monitor      *connectivity.Monitor
	stylesDir    string
}

// Config lists the collaborators the router serves.
type Config struct {
	Sources      *source.Sources
	Resolver     *resolver.Resolver
	Facade       *derived.Facade
	Orchestrator *download.Orchestrator
	Monitor      *connectivity.Monitor
	StylesDir    string
}

// NewRouter creates a router over the core.
func NewRouter(cfg Config) *Router {
	return &Router{
		sources:      cfg.Sources,
		resolver:     cfg.Resolver,
		facade:       cfg.Facade,
		orchestrator: cfg.Orchestrator,
		monitor:      cfg.Monitor,
		stylesDir:    cfg.StylesDir,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		MaxAge:         300,
	}))

	// Base and overlay tiles.
	r.Route("/tiles", func(r chi.Router) {
		r.Get("/{source}.json", router.TileJSON)
		r.Get(`/{source}/{z:\d+}/{x:\d+}/{y:\d+}.{ext:[a-z]+}`, router.Tile)
	})

	// Derived tiles. Generation is CPU-bound, so the group carries its own
	// rate limit.
	for _, kind := range []string{"contours", "bathymetry", "soundings", "composite"} {
		kind := kind
		r.Route("/"+kind, func(r chi.Router) {
			r.Use(httprate.LimitByIP(300, time.Minute))
			r.Get("/{source}.json", router.DerivedTileJSON(kind))
			r.Get(`/{source}/{z:\d+}/{x:\d+}/{y:\d+}.pbf`, router.DerivedTile(kind))
		})
	}

	// Sector download management.
	r.Route("/pmtiles", func(r chi.Router) {
		r.Use(httprate.LimitByIP(60, time.Minute))
		r.Get("/", router.ListSectors)
		r.Post("/", router.EnqueueSectors)
		r.Delete("/", router.DeleteSector)
		r.Get("/status", router.DownloadStatus)
		r.Post("/cancel", router.CancelDownloads)
		r.Get("/progress", router.DownloadProgress)
	})

	// Static MapLibre assets.
	r.Get("/styles/{name}.json", router.Style)
	r.Get("/sprites/*", router.Sprite)
	r.Get(`/glyphs/{fontstack}/{range}.pbf`, router.Glyphs)

	// Operational endpoints.
	r.Get("/health", router.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// pathTile extracts and validates the z/x/y path parameters.
func pathTile(r *http.Request) (z, x, y int, ok bool) {
	var err error
	if z, err = strconv.Atoi(chi.URLParam(r, "z")); err != nil {
		return 0, 0, 0, false
	}
	if x, err = strconv.Atoi(chi.URLParam(r, "x")); err != nil {
		return 0, 0, 0, false
	}
	if y, err = strconv.Atoi(chi.URLParam(r, "y")); err != nil {
		return 0, 0, 0, false
	}
	return z, x, y, true
}
