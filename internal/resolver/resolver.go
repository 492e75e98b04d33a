// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package resolver orchestrates the three-tier tile lookup: filesystem
// cache, offline sector archive, online range fetch.
//
// Identical concurrent requests are coalesced onto a single in-flight
// fetch. Freshness is mtime-based: within the freshness window the newer of
// cache and offline archive wins and the network is never touched; outside
// it the resolver prefers a refresh over stale offline data. Transient I/O
// in one tier falls through silently to the next; only when every tier
// fails does the request surface as absent.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/pelagos/internal/handlepool"
	"github.com/tomtom215/pelagos/internal/logging"
	"github.com/tomtom215/pelagos/internal/metrics"
	"github.com/tomtom215/pelagos/internal/pmtiles"
	"github.com/tomtom215/pelagos/internal/source"
	"github.com/tomtom215/pelagos/internal/tilecache"
	"github.com/tomtom215/pelagos/internal/tiles"
)

// DefaultFreshness is the window within which offline data is served
// without consulting the network.
const DefaultFreshness = 7 * 24 * time.Hour

// ErrUnknownSource distinguishes "no such source" (HTTP 404) from "no tile
// here" (HTTP 204).
var ErrUnknownSource = errors.New("unknown source")

// OnlineChecker reports current upstream reachability. Satisfied by
// *connectivity.Monitor.
type OnlineChecker interface {
	Online() bool
}

// Result is a resolved tile.
type Result struct {
	Bytes   []byte
	ModTime time.Time
}

type inflight struct {
	done chan struct{}
	res  Result
	ok   bool
	err  error
}

// Config wires the resolver's collaborators.
type Config struct {
	Sources     *source.Sources
	Cache       *tilecache.Cache
	Pool        *handlepool.Pool
	Monitor     OnlineChecker
	PMTilesRoot string

	// Freshness overrides DefaultFreshness when positive.
	Freshness time.Duration

	// Client is used for online range fetches; nil uses a 30s-timeout client.
	Client *http.Client

	// OnlineFetchesPerSecond bounds the online tier; zero means 20.
	OnlineFetchesPerSecond float64
}

// Resolver implements the tile lookup. All fields behind mu are the shared
// mutable state named in the design: the pending-request map and the
// per-source online reader cache.
type Resolver struct {
	sources   *source.Sources
	cache     *tilecache.Cache
	pool      *handlepool.Pool
	monitor   OnlineChecker
	root      string
	freshness time.Duration
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[[]byte]
	logger    zerolog.Logger

	mu       sync.Mutex
	pending  map[string]*inflight
	online   map[string]*pmtiles.Reader
	openHTTP func(client *http.Client, url string) (*pmtiles.Reader, error)

	now func() time.Time
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	freshness := cfg.Freshness
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	perSecond := cfg.OnlineFetchesPerSecond
	if perSecond <= 0 {
		perSecond = 20
	}
	return &Resolver{
		sources:   cfg.Sources,
		cache:     cfg.Cache,
		pool:      cfg.Pool,
		monitor:   cfg.Monitor,
		root:      cfg.PMTilesRoot,
		freshness: freshness,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), int(perSecond)*2),
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "online-tiles",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		logger:   logging.With().Str("component", "resolver").Logger(),
		pending:  make(map[string]*inflight),
		online:   make(map[string]*pmtiles.Reader),
		openHTTP: pmtiles.NewHTTPReader,
		now:      time.Now,
	}
}

// ArchivePath returns the offline archive location for a source within a
// committed sector directory.
func (r *Resolver) ArchivePath(sector tiles.Tile, src source.Source) string {
	return filepath.Join(r.root, tiles.SectorDir(sector), src.Output)
}

// Tile resolves one tile. The boolean is false when the request is valid
// but no tier has data (HTTP 204); ErrUnknownSource reports a bad source
// name (HTTP 404).
func (r *Resolver) Tile(ctx context.Context, name string, t tiles.Tile) (Result, bool, error) {
	src, ok := r.sources.Get(name)
	if !ok {
		return Result{}, false, ErrUnknownSource
	}

	key := fmt.Sprintf("%s/%d/%d/%d", name, t.Z, t.X, t.Y)

	r.mu.Lock()
	if f, exists := r.pending[key]; exists {
		r.mu.Unlock()
		metrics.CoalescedRequests.Inc()
		select {
		case <-f.done:
			return f.res, f.ok, f.err
		case <-ctx.Done():
			return Result{}, false, ctx.Err()
		}
	}
	f := &inflight{done: make(chan struct{})}
	r.pending[key] = f
	r.mu.Unlock()

	start := r.now()
	f.res, f.ok, f.err = r.resolve(ctx, src, t)
	metrics.TileRequestDuration.WithLabelValues(name).Observe(r.now().Sub(start).Seconds())

	r.mu.Lock()
	delete(r.pending, key)
	r.mu.Unlock()
	close(f.done)

	return f.res, f.ok, f.err
}

// ModTime returns the freshest offline-tier timestamp for a source tile:
// the newer of the cached tile file and the sector archive. Zero when
// neither exists. No tile body is read and the network is never consulted,
// which makes it cheap enough for the derived facade's regeneration check.
func (r *Resolver) ModTime(name string, t tiles.Tile) time.Time {
	src, ok := r.sources.Get(name)
	if !ok {
		return time.Time{}
	}
	ts := r.cache.ModTime(tilecache.KindTiles, name, t.Z, t.X, t.Y)
	if offline := r.archiveModTime(src, t); offline.After(ts) {
		ts = offline
	}
	return ts
}

// CloseOnlineReaders drops the per-source online readers. Called on
// shutdown; local readers are owned by the handle pool.
func (r *Resolver) CloseOnlineReaders() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, reader := range r.online {
		reader.Close()
		delete(r.online, name)
	}
}

func (r *Resolver) archiveModTime(src source.Source, t tiles.Tile) time.Time {
	sector, ok := t.Sector()
	if !ok {
		return time.Time{}
	}
	info, err := os.Stat(r.ArchivePath(sector, src))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (r *Resolver) resolve(ctx context.Context, src source.Source, t tiles.Tile) (Result, bool, error) {
	// Zoom gating happens before any disk or network access.
	if t.Z < src.MinZoom || t.Z > src.MaxZoom || !t.Valid() {
		metrics.TileRequests.WithLabelValues(src.Name, "empty").Inc()
		return Result{}, false, nil
	}

	cacheEntry, cacheOK := r.cache.Get(tilecache.KindTiles, src.Name, t.Z, t.X, t.Y)
	var cacheMtime time.Time
	if cacheOK {
		cacheMtime = cacheEntry.ModTime
	}

	offlineMtime := r.archiveModTime(src, t)

	freshest := cacheMtime
	if offlineMtime.After(freshest) {
		freshest = offlineMtime
	}

	if !freshest.IsZero() && r.now().Sub(freshest) <= r.freshness {
		// Offline wins only when strictly newer; on a tie the cache is
		// already decoded and cheaper. Whichever tier is tried first, the
		// other remains as fallback before going online.
		offlineFirst := offlineMtime.After(cacheMtime)
		if offlineFirst {
			if res, ok := r.fromArchive(src, t, offlineMtime); ok {
				metrics.TileRequests.WithLabelValues(src.Name, "offline").Inc()
				return res, true, nil
			}
		}
		if cacheOK {
			if body, err := cacheEntry.Bytes(); err == nil {
				metrics.TileRequests.WithLabelValues(src.Name, "cache").Inc()
				return Result{Bytes: body, ModTime: cacheMtime}, true, nil
			}
		}
		if !offlineFirst {
			if res, ok := r.fromArchive(src, t, offlineMtime); ok {
				metrics.TileRequests.WithLabelValues(src.Name, "offline").Inc()
				return res, true, nil
			}
		}
	}

	if r.monitor != nil && r.monitor.Online() && src.URL != "" {
		if res, ok, err := r.fromOnline(ctx, src, t); err == nil && ok {
			metrics.TileRequests.WithLabelValues(src.Name, "online").Inc()
			return res, true, nil
		} else if err != nil {
			metrics.OnlineFetchErrors.WithLabelValues(src.Name).Inc()
			r.logger.Debug().Err(err).Str("source", src.Name).Str("tile", t.String()).
				Msg("online fetch failed")
		}
	}

	metrics.TileRequests.WithLabelValues(src.Name, "empty").Inc()
	return Result{}, false, nil
}

// fromArchive extracts the tile from the sector archive through the handle
// pool. Any failure, including an archive that simply lacks the tile, is
// reported as a miss so the caller can fall through.
func (r *Resolver) fromArchive(src source.Source, t tiles.Tile, mtime time.Time) (Result, bool) {
	if mtime.IsZero() {
		return Result{}, false
	}
	sector, ok := t.Sector()
	if !ok {
		return Result{}, false
	}
	reader, err := r.pool.Acquire(r.ArchivePath(sector, src))
	if err != nil {
		return Result{}, false
	}
	body, found, err := reader.ReadTile(t)
	if err != nil || !found {
		return Result{}, false
	}
	return Result{Bytes: body, ModTime: mtime}, true
}

func (r *Resolver) fromOnline(ctx context.Context, src source.Source, t tiles.Tile) (Result, bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Result{}, false, err
	}

	reader, err := r.onlineReader(src)
	if err != nil {
		return Result{}, false, err
	}

	var found bool
	body, err := r.breaker.Execute(func() ([]byte, error) {
		var readErr error
		var b []byte
		b, found, readErr = reader.ReadTile(t)
		return b, readErr
	})
	if err != nil {
		return Result{}, false, err
	}
	if !found {
		return Result{}, false, nil
	}

	now := r.now()
	if putErr := r.cache.Put(tilecache.KindTiles, src.Name, t.Z, t.X, t.Y, body); putErr != nil {
		r.logger.Warn().Err(putErr).Str("source", src.Name).Msg("cache write failed")
	}
	return Result{Bytes: body, ModTime: now}, true, nil
}

// onlineReader returns the cached per-source remote reader, creating it on
// first use. Caching keeps the archive header and root directory in memory;
// without it every online tile would re-read the directory.
func (r *Resolver) onlineReader(src source.Source) (*pmtiles.Reader, error) {
	r.mu.Lock()
	if reader, ok := r.online[src.Name]; ok {
		r.mu.Unlock()
		return reader, nil
	}
	r.mu.Unlock()

	reader, err := r.openHTTP(r.client, src.URL)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.online[src.Name]; ok {
		reader.Close()
		return existing, nil
	}
	r.online[src.Name] = reader
	return reader, nil
}
