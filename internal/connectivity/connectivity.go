// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package connectivity tracks whether the upstream tile services are
// reachable.
//
// A background probe issues a HEAD request against a designated upstream on
// a fixed period and folds the outcome into a single atomic boolean. The
// flag is deliberately racy: a stale read only sends one request down a
// suboptimal tier, which the resolver absorbs.
package connectivity

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pelagos/internal/logging"
	"github.com/tomtom215/pelagos/internal/metrics"
)

const (
	// DefaultInterval is the probe period.
	DefaultInterval = 10 * time.Second

	// DefaultTimeout bounds one probe request.
	DefaultTimeout = 5 * time.Second
)

// Monitor probes a URL periodically and exposes the last outcome.
// It implements suture.Service via Serve.
type Monitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	online   atomic.Bool
	logger   zerolog.Logger
}

// New creates a monitor probing url. A zero interval or timeout falls back
// to the defaults.
func New(url string, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.With().Str("component", "connectivity").Logger(),
	}
}

// Online reports the last probe outcome. Lock-free.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Serve runs the probe loop until ctx is cancelled. The first probe fires
// immediately so startup does not wait a full period for connectivity.
func (m *Monitor) Serve(ctx context.Context) error {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (m *Monitor) String() string {
	return "connectivity-monitor"
}

func (m *Monitor) probe(ctx context.Context) {
	online := false
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err == nil {
		resp, doErr := m.client.Do(req)
		if doErr == nil {
			resp.Body.Close()
			online = resp.StatusCode >= 200 && resp.StatusCode < 400
		}
	}

	was := m.online.Swap(online)
	if was != online {
		m.logger.Info().Bool("online", online).Msg("connectivity changed")
	}
	if online {
		metrics.Online.Set(1)
	} else {
		metrics.Online.Set(0)
	}
}
