// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSourcesValidation(t *testing.T) {
	_, err := NewSources([]Source{{Name: "", Output: "x.pmtiles"}})
	assert.Error(t, err)

	_, err = NewSources([]Source{{Name: "a", Output: ""}})
	assert.Error(t, err)

	_, err = NewSources([]Source{
		{Name: "a", Output: "a.pmtiles"},
		{Name: "a", Output: "b.pmtiles"},
	})
	assert.Error(t, err, "duplicate names rejected")

	_, err = NewSources([]Source{{Name: "a", Output: "a.pmtiles", MinZoom: 10, MaxZoom: 4}})
	assert.Error(t, err, "inverted zoom range rejected")
}

func TestSourcesLookupAndOrder(t *testing.T) {
	s, err := NewSources(Defaults())
	require.NoError(t, err)

	assert.Len(t, s.All(), 5)

	first, ok := s.First()
	require.True(t, ok)
	assert.Equal(t, "osm", first.Name)

	osm, ok := s.Get("osm")
	require.True(t, ok)
	assert.True(t, osm.Vector())

	terrain, ok := s.Get("mapterhorn")
	require.True(t, ok)
	assert.False(t, terrain.Vector())
	assert.Equal(t, EncodingTerrarium, terrain.Encoding)

	_, ok = s.Get("ghost")
	assert.False(t, ok)
}

func TestEmptySources(t *testing.T) {
	s, err := NewSources(nil)
	require.NoError(t, err)
	_, ok := s.First()
	assert.False(t, ok)
}
