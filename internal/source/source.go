// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package source describes the upstream tile sources the server fronts.
//
// Five sources are configured at startup: the OSM basemap, the nautical
// overlay, global and European bathymetry, and terrain. Descriptors are
// static for the process lifetime; everything that varies at runtime lives
// in the resolver.
package source

import "fmt"

// Encoding names the terrain-RGB scheme of a raster source, or none for
// vector sources.
type Encoding string

const (
	EncodingNone      Encoding = ""
	EncodingTerrarium Encoding = "terrarium"
	EncodingMapbox    Encoding = "mapbox"
)

// Source describes one upstream tile set.
type Source struct {
	// Name is the URL path segment clients request, e.g. "osm".
	Name string `koanf:"name"`

	// URL is the online archive location; empty disables the online tier.
	URL string `koanf:"url"`

	// Output is the per-sector archive file name, e.g. "osm.pmtiles".
	Output string `koanf:"output"`

	// MinZoom and MaxZoom gate requests before any I/O.
	MinZoom int `koanf:"minzoom"`
	MaxZoom int `koanf:"maxzoom"`

	// Format is the tile payload extension: pbf, png or webp.
	Format string `koanf:"format"`

	// ContentType is sent with tile responses.
	ContentType string `koanf:"content_type"`

	// Encoding is the terrain-RGB variant for raster elevation sources.
	Encoding Encoding `koanf:"encoding"`

	// Attribution is surfaced in TileJSON.
	Attribution string `koanf:"attribution"`
}

// Vector reports whether the source serves MVT tiles.
func (s Source) Vector() bool {
	return s.Format == "pbf"
}

// Sources is a fixed, ordered collection of source descriptors. Order
// matters: the download orchestrator processes sources in order and the
// connectivity monitor probes the first source's URL.
type Sources struct {
	list   []Source
	byName map[string]Source
}

// NewSources builds the collection, rejecting duplicates and descriptors
// without a name or output file.
func NewSources(list []Source) (*Sources, error) {
	s := &Sources{byName: make(map[string]Source, len(list))}
	for _, src := range list {
		if src.Name == "" || src.Output == "" {
			return nil, fmt.Errorf("source %q: name and output are required", src.Name)
		}
		if src.MinZoom < 0 || src.MaxZoom < src.MinZoom {
			return nil, fmt.Errorf("source %q: invalid zoom range %d..%d", src.Name, src.MinZoom, src.MaxZoom)
		}
		if _, dup := s.byName[src.Name]; dup {
			return nil, fmt.Errorf("source %q: duplicate name", src.Name)
		}
		s.list = append(s.list, src)
		s.byName[src.Name] = src
	}
	return s, nil
}

// Get looks a source up by name.
func (s *Sources) Get(name string) (Source, bool) {
	src, ok := s.byName[name]
	return src, ok
}

// All returns the sources in configuration order.
func (s *Sources) All() []Source {
	return s.list
}

// First returns the first source; used as the connectivity probe target.
func (s *Sources) First() (Source, bool) {
	if len(s.list) == 0 {
		return Source{}, false
	}
	return s.list[0], true
}

// Defaults returns the five descriptors Pelagos ships with. Hosts may
// override them wholesale through configuration.
func Defaults() []Source {
	return []Source{
		{
			Name:        "osm",
			URL:         "https://demo-bucket.protomaps.com/v4.pmtiles",
			Output:      "osm.pmtiles",
			MinZoom:     0,
			MaxZoom:     14,
			Format:      "pbf",
			ContentType: "application/x-protobuf",
			Attribution: "© OpenStreetMap contributors",
		},
		{
			Name:        "seamap",
			URL:         "https://tiles.openseamap.org/seamark.pmtiles",
			Output:      "seamap.pmtiles",
			MinZoom:     6,
			MaxZoom:     14,
			Format:      "pbf",
			ContentType: "application/x-protobuf",
			Attribution: "© OpenSeaMap contributors",
		},
		{
			Name:        "gebco",
			URL:         "https://bathymetry.example.com/gebco-terrarium.pmtiles",
			Output:      "gebco.pmtiles",
			MinZoom:     0,
			MaxZoom:     8,
			Format:      "png",
			ContentType: "image/png",
			Encoding:    EncodingTerrarium,
			Attribution: "GEBCO Compilation Group",
		},
		{
			Name:        "emodnet",
			URL:         "https://bathymetry.example.com/emodnet-terrarium.pmtiles",
			Output:      "emodnet.pmtiles",
			MinZoom:     6,
			MaxZoom:     12,
			Format:      "png",
			ContentType: "image/png",
			Encoding:    EncodingTerrarium,
			Attribution: "EMODnet Bathymetry Consortium",
		},
		{
			Name:        "mapterhorn",
			URL:         "https://download.mapterhorn.com/planet.pmtiles",
			Output:      "mapterhorn.pmtiles",
			MinZoom:     0,
			MaxZoom:     12,
			Format:      "webp",
			ContentType: "image/webp",
			Encoding:    EncodingTerrarium,
			Attribution: "© Mapterhorn, © Swisstopo",
		},
	}
}
