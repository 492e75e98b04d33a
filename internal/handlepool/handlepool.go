// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package handlepool bounds the number of simultaneously open offline
// archive readers.
//
// Every committed sector holds one archive file per source; with dozens of
// sectors on disk an unbounded cache of open readers would exhaust file
// descriptors. The pool keeps the most recently used readers open and
// closes the least recently used one when the bound is exceeded.
//
// A doubly-linked list provides ordering and a hashmap provides lookups, so
// acquire and eviction are both O(1). Handing a reader out across a
// suspension point is safe: archive readers use positional I/O and closing
// under a concurrent read surfaces as an I/O error absorbed by the resolver.
package handlepool

import (
	"sync"

	"github.com/tomtom215/pelagos/internal/metrics"
	"github.com/tomtom215/pelagos/internal/pmtiles"
)

// DefaultMaxSize is the default bound on open archive readers.
const DefaultMaxSize = 50

type entry struct {
	path   string
	reader *pmtiles.Reader
	prev   *entry
	next   *entry
}

// Pool is a thread-safe LRU cache of open local archive readers keyed by
// file path.
type Pool struct {
	mu sync.Mutex

	maxSize int
	items   map[string]*entry

	// head.next is the most recently used, tail.prev the least.
	head *entry
	tail *entry

	// open is the factory, replaceable in tests.
	open func(path string) (*pmtiles.Reader, error)
}

// New creates a pool holding at most maxSize open readers.
func New(maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	p := &Pool{
		maxSize: maxSize,
		items:   make(map[string]*entry, maxSize),
		head:    &entry{},
		tail:    &entry{},
		open:    pmtiles.NewFileReader,
	}
	p.head.next = p.tail
	p.tail.prev = p.head
	return p
}

// Acquire returns an open reader for path, promoting it to most recently
// used. A miss opens the file; if that pushes the pool past its bound the
// least recently used reader is closed and dropped before Acquire returns.
func (p *Pool) Acquire(path string) (*pmtiles.Reader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.items[path]; ok {
		p.moveToFront(e)
		metrics.PoolHits.Inc()
		return e.reader, nil
	}

	reader, err := p.open(path)
	if err != nil {
		return nil, err
	}
	metrics.PoolMisses.Inc()

	e := &entry{path: path, reader: reader}
	p.addToFront(e)
	p.items[path] = e

	for len(p.items) > p.maxSize {
		p.evictOldest()
	}
	metrics.PoolSize.Set(float64(len(p.items)))
	return reader, nil
}

// Invalidate drops the reader for path if present, closing it. Used when a
// sector is deleted or replaced so stale directories are not served.
func (p *Pool) Invalidate(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.items[path]; ok {
		p.remove(e)
		e.reader.Close()
		metrics.PoolSize.Set(float64(len(p.items)))
	}
}

// Len returns the number of open readers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// CloseAll drains the pool, closing every reader. Called on shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.items {
		e.reader.Close()
	}
	p.items = make(map[string]*entry, p.maxSize)
	p.head.next = p.tail
	p.tail.prev = p.head
	metrics.PoolSize.Set(0)
}

// Internal list operations (lock held).

func (p *Pool) addToFront(e *entry) {
	e.prev = p.head
	e.next = p.head.next
	p.head.next.prev = e
	p.head.next = e
}

func (p *Pool) moveToFront(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	p.addToFront(e)
}

func (p *Pool) remove(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(p.items, e.path)
}

func (p *Pool) evictOldest() {
	oldest := p.tail.prev
	if oldest == p.head {
		return
	}
	p.remove(oldest)
	oldest.reader.Close()
	metrics.PoolEvictions.Inc()
}
