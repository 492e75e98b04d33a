// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package metrics provides Prometheus instrumentation for the tile
// pipeline: resolver tiers, the archive handle pool, derived-tile
// generation, and sector downloads.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resolver metrics

	TileRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pelagos_tile_requests_total",
			Help: "Tile requests by source and serving tier",
		},
		[]string{"source", "tier"}, // tier: "cache", "offline", "online", "empty"
	)

	TileRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pelagos_tile_request_duration_seconds",
			Help:    "Tile resolution latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	CoalescedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pelagos_tile_requests_coalesced_total",
			Help: "Tile requests that joined an in-flight fetch instead of starting one",
		},
	)

	OnlineFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pelagos_online_fetch_errors_total",
			Help: "Failed online range fetches by source",
		},
		[]string{"source"},
	)

	// Connectivity metrics

	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pelagos_online",
			Help: "1 when the connectivity probe last succeeded, 0 otherwise",
		},
	)

	// Archive handle pool metrics

	PoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pelagos_archive_pool_open_readers",
			Help: "Open offline archive readers",
		},
	)

	PoolHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pelagos_archive_pool_hits_total",
			Help: "Archive reader acquisitions served from the pool",
		},
	)

	PoolMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pelagos_archive_pool_misses_total",
			Help: "Archive reader acquisitions that opened a file",
		},
	)

	PoolEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pelagos_archive_pool_evictions_total",
			Help: "Readers closed due to the pool bound",
		},
	)

	// Derived-tile metrics

	DerivedGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pelagos_derived_generations_total",
			Help: "Derived tiles generated by kind",
		},
		[]string{"kind"}, // "contours", "bathymetry", "soundings", "composite"
	)

	DerivedGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pelagos_derived_generation_duration_seconds",
			Help:    "Derived-tile generation latency in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	DerivedCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pelagos_derived_cache_hits_total",
			Help: "Derived tiles served from cache without regeneration",
		},
		[]string{"kind"},
	)

	// Download orchestrator metrics

	DownloadSectors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pelagos_download_sectors_total",
			Help: "Sector downloads by outcome",
		},
		[]string{"outcome"}, // "done", "failed", "cancelled"
	)

	DownloadActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pelagos_download_active",
			Help: "1 while a sector download is in progress",
		},
	)

	DownloadQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pelagos_download_queue_length",
			Help: "Sectors waiting in the download queue",
		},
	)
)
