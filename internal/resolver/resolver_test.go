// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package resolver

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/pelagos/internal/handlepool"
	"github.com/tomtom215/pelagos/internal/pmtiles"
	"github.com/tomtom215/pelagos/internal/pmtiles/pmtilestest"
	"github.com/tomtom215/pelagos/internal/source"
	"github.com/tomtom215/pelagos/internal/tilecache"
	"github.com/tomtom215/pelagos/internal/tiles"
)

type fixedMonitor bool

func (m fixedMonitor) Online() bool { return bool(m) }

func testSources(t *testing.T, url string) *source.Sources {
	t.Helper()
	s, err := source.NewSources([]source.Source{{
		Name:        "osm",
		URL:         url,
		Output:      "osm.pmtiles",
		MinZoom:     0,
		MaxZoom:     14,
		Format:      "pbf",
		ContentType: "application/x-protobuf",
	}})
	require.NoError(t, err)
	return s
}

type fixture struct {
	r         *Resolver
	cacheRoot string
	pmRoot    string
}

func newFixture(t *testing.T, url string, online bool) *fixture {
	t.Helper()
	cacheRoot := t.TempDir()
	pmRoot := t.TempDir()
	r := New(Config{
		Sources:     testSources(t, url),
		Cache:       tilecache.New(cacheRoot),
		Pool:        handlepool.New(4),
		Monitor:     fixedMonitor(online),
		PMTilesRoot: pmRoot,
	})
	return &fixture{r: r, cacheRoot: cacheRoot, pmRoot: pmRoot}
}

func (f *fixture) writeSectorArchive(t *testing.T, sector tiles.Tile, contents map[tiles.Tile][]byte) string {
	t.Helper()
	dir := filepath.Join(f.pmRoot, tiles.SectorDir(sector))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "osm.pmtiles")
	require.NoError(t, pmtilestest.WriteArchive(path, contents))
	return path
}

func (f *fixture) cachePath(t tiles.Tile) string {
	return filepath.Join(f.cacheRoot, "tiles", "osm",
		strconv.Itoa(t.Z), strconv.Itoa(t.X), strconv.Itoa(t.Y))
}

func TestUnknownSource(t *testing.T) {
	f := newFixture(t, "", false)
	_, _, err := f.r.Tile(context.Background(), "nope", tiles.Tile{Z: 8, X: 1, Y: 1})
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestZoomGateReturnsAbsent(t *testing.T) {
	f := newFixture(t, "http://unreachable.invalid", true)

	_, ok, err := f.r.Tile(context.Background(), "osm", tiles.Tile{Z: 15, X: 0, Y: 0})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = f.r.Tile(context.Background(), "osm", tiles.Tile{Z: 8, X: 1 << 10, Y: 0})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServesFreshCache(t *testing.T) {
	f := newFixture(t, "", false)
	tile := tiles.Tile{Z: 8, X: 132, Y: 88}
	require.NoError(t, f.r.cache.Put(tilecache.KindTiles, "osm", tile.Z, tile.X, tile.Y, []byte("cached")))

	res, ok, err := f.r.Tile(context.Background(), "osm", tile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("cached"), res.Bytes)
}

func TestOfflineArchiveWinsWhenNewer(t *testing.T) {
	f := newFixture(t, "", false)
	tile := tiles.Tile{Z: 8, X: 132, Y: 88}
	sector, _ := tile.Sector()

	// Cache entry backdated behind the archive.
	require.NoError(t, f.r.cache.Put(tilecache.KindTiles, "osm", tile.Z, tile.X, tile.Y, []byte("stale cache")))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(f.cachePath(tile), past, past))

	f.writeSectorArchive(t, sector, map[tiles.Tile][]byte{tile: []byte("archive tile")})

	res, ok, err := f.r.Tile(context.Background(), "osm", tile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("archive tile"), res.Bytes)

	// The cache file is not rewritten by an offline serve.
	entry, found := f.r.cache.Get(tilecache.KindTiles, "osm", tile.Z, tile.X, tile.Y)
	require.True(t, found)
	body, _ := entry.Bytes()
	assert.Equal(t, []byte("stale cache"), body)
}

func TestCacheWinsOnTie(t *testing.T) {
	f := newFixture(t, "", false)
	tile := tiles.Tile{Z: 8, X: 132, Y: 88}
	sector, _ := tile.Sector()

	archivePath := f.writeSectorArchive(t, sector, map[tiles.Tile][]byte{tile: []byte("archive tile")})
	require.NoError(t, f.r.cache.Put(tilecache.KindTiles, "osm", tile.Z, tile.X, tile.Y, []byte("cached")))

	// Same timestamp on both.
	ts := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(archivePath, ts, ts))
	require.NoError(t, os.Chtimes(f.cachePath(tile), ts, ts))

	res, ok, err := f.r.Tile(context.Background(), "osm", tile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("cached"), res.Bytes)
}

func TestArchiveMissFallsBackToCache(t *testing.T) {
	f := newFixture(t, "", false)
	tile := tiles.Tile{Z: 8, X: 132, Y: 88}
	sector, _ := tile.Sector()

	// Archive is newer but holds no tile at the coordinate.
	require.NoError(t, f.r.cache.Put(tilecache.KindTiles, "osm", tile.Z, tile.X, tile.Y, []byte("cached")))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(f.cachePath(tile), past, past))
	f.writeSectorArchive(t, sector, map[tiles.Tile][]byte{})

	res, ok, err := f.r.Tile(context.Background(), "osm", tile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("cached"), res.Bytes)
}

func TestStaleOfflineDataIsNotServed(t *testing.T) {
	f := newFixture(t, "", false)
	tile := tiles.Tile{Z: 8, X: 132, Y: 88}
	sector, _ := tile.Sector()

	path := f.writeSectorArchive(t, sector, map[tiles.Tile][]byte{tile: []byte("old tile")})
	old := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	// Offline and stale, no connectivity: absent.
	_, ok, err := f.r.Tile(context.Background(), "osm", tile)
	require.NoError(t, err)
	assert.False(t, ok)
}

// onlineFixture swaps the HTTP opener for an in-memory archive and counts
// tile-body fetches.
func onlineFixture(t *testing.T, f *fixture, contents map[tiles.Tile][]byte, delay time.Duration) *atomic.Int64 {
	t.Helper()
	archive, err := pmtilestest.BuildArchive(contents)
	require.NoError(t, err)

	header, err := pmtiles.DeserializeHeader(archive[:pmtiles.HeaderLength])
	require.NoError(t, err)

	var bodyFetches atomic.Int64
	f.r.openHTTP = func(_ *http.Client, _ string) (*pmtiles.Reader, error) {
		fetch := func(offset, length uint64) ([]byte, error) {
			if offset >= header.TileDataOffset {
				if delay > 0 {
					time.Sleep(delay)
				}
				bodyFetches.Add(1)
			}
			return archive[offset : offset+length], nil
		}
		return pmtiles.NewReader(fetch, nil)
	}
	return &bodyFetches
}

func TestColdRequestHitsOnlineAndCaches(t *testing.T) {
	f := newFixture(t, "https://tiles.example.com/osm.pmtiles", true)
	tile := tiles.Tile{Z: 8, X: 132, Y: 88}
	fetches := onlineFixture(t, f, map[tiles.Tile][]byte{tile: []byte("online tile")}, 0)

	res, ok, err := f.r.Tile(context.Background(), "osm", tile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("online tile"), res.Bytes)
	assert.Equal(t, int64(1), fetches.Load())
	assert.WithinDuration(t, time.Now(), res.ModTime, 5*time.Second)

	// The result landed in the cache; the next request does not fetch.
	res, ok, err = f.r.Tile(context.Background(), "osm", tile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("online tile"), res.Bytes)
	assert.Equal(t, int64(1), fetches.Load())
}

func TestCoalescingSingleFetch(t *testing.T) {
	f := newFixture(t, "https://tiles.example.com/osm.pmtiles", true)
	tile := tiles.Tile{Z: 8, X: 132, Y: 88}
	fetches := onlineFixture(t, f, map[tiles.Tile][]byte{tile: []byte("online tile")}, 30*time.Millisecond)

	const n = 16
	var wg sync.WaitGroup
	results := make([][]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, ok, err := f.r.Tile(context.Background(), "osm", tile)
			assert.NoError(t, err)
			assert.True(t, ok)
			results[i] = res.Bytes
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), fetches.Load(), "concurrent identical requests must coalesce")
	for i := 0; i < n; i++ {
		assert.Equal(t, []byte("online tile"), results[i])
	}
}

func TestOnlineAbsentTile(t *testing.T) {
	f := newFixture(t, "https://tiles.example.com/osm.pmtiles", true)
	onlineFixture(t, f, map[tiles.Tile][]byte{}, 0)

	_, ok, err := f.r.Tile(context.Background(), "osm", tiles.Tile{Z: 8, X: 1, Y: 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOfflineMonitorSkipsOnline(t *testing.T) {
	f := newFixture(t, "https://tiles.example.com/osm.pmtiles", false)
	tile := tiles.Tile{Z: 8, X: 132, Y: 88}
	fetches := onlineFixture(t, f, map[tiles.Tile][]byte{tile: []byte("online tile")}, 0)

	_, ok, err := f.r.Tile(context.Background(), "osm", tile)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), fetches.Load())
}

func TestModTime(t *testing.T) {
	f := newFixture(t, "", false)
	tile := tiles.Tile{Z: 8, X: 132, Y: 88}
	sector, _ := tile.Sector()

	assert.True(t, f.r.ModTime("osm", tile).IsZero())
	assert.True(t, f.r.ModTime("nope", tile).IsZero())

	path := f.writeSectorArchive(t, sector, map[tiles.Tile][]byte{tile: []byte("x")})
	archiveTime := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, archiveTime, archiveTime))
	assert.WithinDuration(t, archiveTime, f.r.ModTime("osm", tile), time.Second)

	// A newer cache entry takes over.
	require.NoError(t, f.r.cache.Put(tilecache.KindTiles, "osm", tile.Z, tile.X, tile.Y, []byte("c")))
	assert.WithinDuration(t, time.Now(), f.r.ModTime("osm", tile), 5*time.Second)
}
