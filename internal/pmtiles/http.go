// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package pmtiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// NewHTTPReader opens a remote archive addressed by url, issuing one ranged
// GET per fetch. The caller owns the client; per-request deadlines come from
// its Timeout. The reader holds no connection state of its own, so it is
// safe to keep one per source for the lifetime of the process.
func NewHTTPReader(client *http.Client, url string) (*Reader, error) {
	if client == nil {
		client = http.DefaultClient
	}
	fetch := func(offset, length uint64) ([]byte, error) {
		return fetchRange(client, url, offset, length)
	}
	return NewReader(fetch, nil)
}

func fetchRange(client *http.Client, url string, offset, length uint64) ([]byte, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return io.ReadAll(io.LimitReader(resp.Body, int64(length)))
	case http.StatusOK:
		// Server ignored the Range header; skip to the requested window.
		if _, err := io.CopyN(io.Discard, resp.Body, int64(offset)); err != nil {
			return nil, err
		}
		return io.ReadAll(io.LimitReader(resp.Body, int64(length)))
	default:
		return nil, fmt.Errorf("range request %s: unexpected status %d", url, resp.StatusCode)
	}
}
