// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Command server runs the Pelagos tile server.
//
// Startup sequence: configuration, logging, core construction (cache, pool,
// monitor, resolver, derived facade, download orchestrator), HTTP router,
// then the supervision tree until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/pelagos/internal/api"
	"github.com/tomtom215/pelagos/internal/config"
	"github.com/tomtom215/pelagos/internal/connectivity"
	"github.com/tomtom215/pelagos/internal/derived"
	"github.com/tomtom215/pelagos/internal/download"
	"github.com/tomtom215/pelagos/internal/handlepool"
	"github.com/tomtom215/pelagos/internal/logging"
	"github.com/tomtom215/pelagos/internal/resolver"
	"github.com/tomtom215/pelagos/internal/source"
	"github.com/tomtom215/pelagos/internal/supervisor"
	"github.com/tomtom215/pelagos/internal/tilecache"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "c", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pelagos: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := run(cfg); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config) error {
	sources, err := cfg.BuildSources()
	if err != nil {
		return fmt.Errorf("sources: %w", err)
	}

	cache := tilecache.New(cfg.Paths.Cache)
	derivedCache := cache
	if cfg.Paths.Derived != cfg.Paths.Cache {
		derivedCache = tilecache.New(cfg.Paths.Derived)
	}
	pool := handlepool.New(cfg.Resolver.PoolSize)
	defer pool.CloseAll()

	var monitor *connectivity.Monitor
	if first, ok := sources.First(); ok && first.URL != "" {
		monitor = connectivity.New(first.URL, cfg.Resolver.ProbeInterval, cfg.Resolver.ProbeTimeout)
	}

	res := resolver.New(resolver.Config{
		Sources:                sources,
		Cache:                  cache,
		Pool:                   pool,
		Monitor:                monitor,
		PMTilesRoot:            cfg.Paths.PMTiles,
		Freshness:              cfg.Resolver.Freshness,
		Client:                 &http.Client{Timeout: 30 * time.Second},
		OnlineFetchesPerSecond: cfg.Resolver.OnlineFetchesPerSecond,
	})
	defer res.CloseOnlineReaders()

	facade := derived.New(derived.Config{
		Sources:       sources,
		Provider:      res,
		Cache:         derivedCache,
		Depths:        cfg.Derived.Depths,
		Overzoom:      cfg.Derived.Overzoom,
		BasemapSource: basemapName(sources),
		OverlaySource: overlayName(sources),
	})

	orchestrator := download.New(cfg.Paths.PMTiles, sources, cfg.Download.Utility, pool.Invalidate)
	if err := orchestrator.CheckUtility(); err != nil {
		logging.Warn().Err(err).Msg("sector downloads disabled")
	}

	router := api.NewRouter(api.Config{
		Sources:      sources,
		Resolver:     res,
		Facade:       facade,
		Orchestrator: orchestrator,
		Monitor:      monitor,
		StylesDir:    cfg.Paths.Styles,
	})

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	if monitor != nil {
		tree.AddProbeService(monitor)
	}
	tree.AddAPIService(supervisor.NewHTTPServer(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		router.Setup(),
		cfg.Server.ReadTimeout,
		cfg.Server.IdleTimeout,
		10*time.Second,
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Int("port", cfg.Server.Port).
		Int("sources", len(sources.All())).
		Str("pmtiles", cfg.Paths.PMTiles).
		Msg("pelagos starting")

	err = tree.Serve(ctx)
	orchestrator.Cancel()
	return err
}

// basemapName picks the composite base layer: the first vector source in
// configuration order.
func basemapName(sources *source.Sources) string {
	for _, src := range sources.All() {
		if src.Vector() {
			return src.Name
		}
	}
	return ""
}

// overlayName picks the composite overlay: the second vector source.
func overlayName(sources *source.Sources) string {
	seen := 0
	for _, src := range sources.All() {
		if src.Vector() {
			seen++
			if seen == 2 {
				return src.Name
			}
		}
	}
	return ""
}
