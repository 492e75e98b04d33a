// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package download drives the external archive-extraction utility to fill
// offline sector directories.
//
// One sector at a time, one source at a time, strictly sequential: that
// keeps progress attribution simple and bounds the disk and network load
// the utility can generate. Extraction happens into a dot-prefixed staging
// directory that the sector listing ignores; only a fully-extracted sector
// is renamed into place, so readers never observe a partial sector.
package download

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/pelagos/internal/logging"
	"github.com/tomtom215/pelagos/internal/metrics"
	"github.com/tomtom215/pelagos/internal/source"
	"github.com/tomtom215/pelagos/internal/tiles"
)

// DefaultUtility is the extraction binary searched for on PATH.
const DefaultUtility = "pmtiles"

var (
	// ErrInvalidSector reports a malformed sector identifier.
	ErrInvalidSector = errors.New("invalid sector identifier")

	// ErrUtilityMissing reports that the extraction utility is not on PATH.
	ErrUtilityMissing = errors.New("extraction utility not found")

	// ErrForbidden reports a path that escapes the sector root.
	ErrForbidden = errors.New("path outside sector root")
)

// sectorPattern is the exact accepted shape of a sector identifier.
var sectorPattern = regexp.MustCompile(`^(\d+)/(\d+)/(\d+)$`)

// progressPattern matches the size pair the utility prints on stderr,
// e.g. "12MB / 345MB".
var progressPattern = regexp.MustCompile(`([0-9.]+\s?[KMGT]?i?B)\s*/\s*([0-9.]+\s?[KMGT]?i?B)`)

// Progress describes the live extraction, if any.
type Progress struct {
	Sector string `json:"sector"`
	Source string `json:"source"`
	Bytes  string `json:"bytes"` // "downloaded / total", as printed by the utility
}

// Status is the orchestrator's externally visible state.
type Status struct {
	Active   bool      `json:"active"`
	JobID    string    `json:"jobId,omitempty"`
	Queue    []string  `json:"queue"`
	Done     []string  `json:"done"`
	Failed   []string  `json:"failed"`
	Total    int       `json:"total"`
	Complete int       `json:"done_units"`
	Progress *Progress `json:"progress"`
}

// Orchestrator is the process-wide download state machine. All mutable
// fields are guarded by mu; the worker goroutine is the only writer of
// sector outcomes.
type Orchestrator struct {
	root    string
	sources *source.Sources
	utility string
	logger  zerolog.Logger

	// invalidate is called with each archive path replaced by a commit or
	// delete so the handle pool drops stale readers.
	invalidate func(path string)

	mu          sync.Mutex
	active      bool
	jobID       string
	queue       []tiles.Tile
	done        []tiles.Tile
	failed      []tiles.Tile
	progress    *Progress
	cmd         *exec.Cmd
	sourceIndex int
	cancelled   bool

	subscribers map[chan Status]struct{}

	// lookPath and command are swappable in tests.
	lookPath func(file string) (string, error)
	command  func(name string, args ...string) *exec.Cmd
}

// New creates an orchestrator extracting into root.
func New(root string, sources *source.Sources, utility string, invalidate func(string)) *Orchestrator {
	if utility == "" {
		utility = DefaultUtility
	}
	if invalidate == nil {
		invalidate = func(string) {}
	}
	return &Orchestrator{
		root:        root,
		sources:     sources,
		utility:     utility,
		invalidate:  invalidate,
		logger:      logging.With().Str("component", "download").Logger(),
		subscribers: make(map[chan Status]struct{}),
		lookPath:    exec.LookPath,
		command:     exec.Command,
	}
}

// ParseSector validates a "z/x/y" identifier and reduces it to its sector.
func ParseSector(id string) (tiles.Tile, error) {
	m := sectorPattern.FindStringSubmatch(id)
	if m == nil {
		return tiles.Tile{}, fmt.Errorf("%w: %q", ErrInvalidSector, id)
	}
	z, _ := strconv.Atoi(m[1])
	x, _ := strconv.Atoi(m[2])
	y, _ := strconv.Atoi(m[3])
	t := tiles.Tile{Z: z, X: x, Y: y}
	if !t.Valid() {
		return tiles.Tile{}, fmt.Errorf("%w: %q out of range", ErrInvalidSector, id)
	}
	sector, ok := t.Sector()
	if !ok {
		return tiles.Tile{}, fmt.Errorf("%w: zoom %d below sector zoom", ErrInvalidSector, z)
	}
	return sector, nil
}

// CheckUtility verifies the extraction utility is on the search path.
func (o *Orchestrator) CheckUtility() error {
	if _, err := o.lookPath(o.utility); err != nil {
		return fmt.Errorf("%w: %q", ErrUtilityMissing, o.utility)
	}
	return nil
}

// Enqueue validates and appends sector identifiers, starting the worker if
// idle. Identifiers already queued are ignored.
func (o *Orchestrator) Enqueue(ids []string) error {
	if err := o.CheckUtility(); err != nil {
		return err
	}

	sectors := make([]tiles.Tile, 0, len(ids))
	for _, id := range ids {
		sector, err := ParseSector(strings.TrimSpace(id))
		if err != nil {
			return err
		}
		sectors = append(sectors, sector)
	}

	o.mu.Lock()
	queued := make(map[tiles.Tile]bool, len(o.queue))
	for _, s := range o.queue {
		queued[s] = true
	}
	for _, s := range sectors {
		if !queued[s] {
			o.queue = append(o.queue, s)
			queued[s] = true
		}
	}
	start := !o.active && len(o.queue) > 0
	if start {
		o.active = true
		o.cancelled = false
		o.jobID = uuid.NewString()
		o.done = nil
		o.failed = nil
		metrics.DownloadActive.Set(1)
	}
	metrics.DownloadQueueLength.Set(float64(len(o.queue)))
	o.mu.Unlock()

	if start {
		go o.run()
	}
	o.notify()
	return nil
}

// Cancel terminates the live subprocess, drops the queue, removes the
// staging directory and resets to idle.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	o.cancelled = true
	cmd := o.cmd
	var staging string
	if len(o.queue) > 0 {
		staging = o.stagingDir(o.queue[0])
	}
	o.queue = nil
	o.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGTERM)
	}
	if staging != "" {
		os.RemoveAll(staging)
	}

	o.mu.Lock()
	o.active = false
	o.progress = nil
	o.done = nil
	o.failed = nil
	o.sourceIndex = 0
	metrics.DownloadActive.Set(0)
	metrics.DownloadQueueLength.Set(0)
	metrics.DownloadSectors.WithLabelValues("cancelled").Inc()
	o.mu.Unlock()
	o.notify()
}

// Status reports the current queue, outcomes and live progress.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked()
}

func (o *Orchestrator) statusLocked() Status {
	n := len(o.sources.All())
	st := Status{
		Active: o.active,
		JobID:  o.jobID,
		Queue:  sectorIDs(o.queue),
		Done:   sectorIDs(o.done),
		Failed: sectorIDs(o.failed),
		Total:  (len(o.queue) + len(o.done) + len(o.failed)) * n,
	}
	st.Complete = (len(o.done) + len(o.failed)) * n
	if o.active && o.sourceIndex > 0 {
		st.Complete += o.sourceIndex - 1
	}
	if o.progress != nil {
		p := *o.progress
		st.Progress = &p
	}
	return st
}

func sectorIDs(sectors []tiles.Tile) []string {
	ids := make([]string, len(sectors))
	for i, s := range sectors {
		ids[i] = s.String()
	}
	return ids
}

// Subscribe registers a status listener for the progress stream. The
// returned cancel function must be called to release the channel. Slow
// listeners miss intermediate updates rather than blocking the worker.
func (o *Orchestrator) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 8)
	o.mu.Lock()
	o.subscribers[ch] = struct{}{}
	o.mu.Unlock()
	return ch, func() {
		o.mu.Lock()
		delete(o.subscribers, ch)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	st := o.statusLocked()
	for ch := range o.subscribers {
		select {
		case ch <- st:
		default:
		}
	}
	o.mu.Unlock()
}

func (o *Orchestrator) sectorDir(sector tiles.Tile) string {
	return filepath.Join(o.root, tiles.SectorDir(sector))
}

func (o *Orchestrator) stagingDir(sector tiles.Tile) string {
	return filepath.Join(o.root, "."+tiles.SectorDir(sector))
}

// run is the single worker loop. It owns queue head removal; Enqueue only
// appends.
func (o *Orchestrator) run() {
	for {
		o.mu.Lock()
		if o.cancelled || len(o.queue) == 0 {
			o.active = false
			o.progress = nil
			o.sourceIndex = 0
			metrics.DownloadActive.Set(0)
			metrics.DownloadQueueLength.Set(float64(len(o.queue)))
			o.mu.Unlock()
			o.notify()
			return
		}
		sector := o.queue[0]
		o.mu.Unlock()

		failed := o.processSector(sector)

		o.mu.Lock()
		if o.cancelled {
			o.mu.Unlock()
			continue
		}
		if len(o.queue) > 0 && o.queue[0] == sector {
			o.queue = o.queue[1:]
		}
		if failed {
			o.failed = append(o.failed, sector)
			metrics.DownloadSectors.WithLabelValues("failed").Inc()
		} else {
			o.done = append(o.done, sector)
			metrics.DownloadSectors.WithLabelValues("done").Inc()
		}
		o.sourceIndex = 0
		metrics.DownloadQueueLength.Set(float64(len(o.queue)))
		o.mu.Unlock()
		o.notify()
	}
}

// processSector extracts every source for one sector into the staging
// directory, then commits or discards it. Returns true when any source
// failed; extraction still continues through the remaining sources so the
// user can see which ones broke.
func (o *Orchestrator) processSector(sector tiles.Tile) bool {
	staging := o.stagingDir(sector)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		o.logger.Error().Err(err).Str("sector", sector.String()).Msg("staging directory")
		return true
	}

	bbox := tiles.ToBbox(sector)
	anyFailed := false

	for i, src := range o.sources.All() {
		o.mu.Lock()
		if o.cancelled {
			o.mu.Unlock()
			os.RemoveAll(staging)
			return true
		}
		o.sourceIndex = i + 1
		o.mu.Unlock()
		o.notify()

		if err := o.extract(sector, src, staging, bbox); err != nil {
			anyFailed = true
			o.logger.Warn().Err(err).
				Str("sector", sector.String()).
				Str("source", src.Name).
				Msg("source extraction failed")
		}
	}

	o.mu.Lock()
	cancelled := o.cancelled
	o.progress = nil
	o.mu.Unlock()

	if cancelled {
		os.RemoveAll(staging)
		return true
	}
	if anyFailed {
		os.RemoveAll(staging)
		return true
	}

	final := o.sectorDir(sector)
	if err := os.RemoveAll(final); err != nil {
		o.logger.Error().Err(err).Str("sector", sector.String()).Msg("replace sector")
		os.RemoveAll(staging)
		return true
	}
	if err := os.Rename(staging, final); err != nil {
		o.logger.Error().Err(err).Str("sector", sector.String()).Msg("commit sector")
		os.RemoveAll(staging)
		return true
	}
	for _, src := range o.sources.All() {
		o.invalidate(filepath.Join(final, src.Output))
	}
	o.logger.Info().Str("sector", sector.String()).Msg("sector committed")
	return false
}

// extract runs one utility invocation and streams its stderr for progress.
func (o *Orchestrator) extract(sector tiles.Tile, src source.Source, staging string, bbox tiles.Bbox) error {
	if src.URL == "" {
		// Sources without an online archive cannot be extracted; skip
		// rather than fail so purely-derived sources do not poison sectors.
		return nil
	}

	args := []string{
		"extract",
		src.URL,
		filepath.Join(staging, src.Output),
		"--bbox=" + bbox.String(),
	}
	if src.MaxZoom > 0 {
		args = append(args, fmt.Sprintf("--maxzoom=%d", src.MaxZoom))
	}

	cmd := o.command(o.utility, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	o.mu.Lock()
	o.cmd = cmd
	o.mu.Unlock()

	o.scanProgress(sector, src, stderr)

	err = cmd.Wait()

	o.mu.Lock()
	o.cmd = nil
	o.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%s extract %s: %w", o.utility, src.Name, err)
	}
	return nil
}

func (o *Orchestrator) scanProgress(sector tiles.Tile, src source.Source, stderr io.Reader) {
	buf := make([]byte, 4096)
	var tail string
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			chunk := tail + string(buf[:n])
			if m := progressPattern.FindAllStringSubmatch(chunk, -1); m != nil {
				last := m[len(m)-1]
				o.mu.Lock()
				o.progress = &Progress{
					Sector: sector.String(),
					Source: src.Name,
					Bytes:  fmt.Sprintf("%s / %s", last[1], last[2]),
				}
				o.mu.Unlock()
				o.notify()
			}
			// Keep a partial trailing line so a size pair split across
			// reads still matches.
			if idx := strings.LastIndexByte(chunk, '\n'); idx >= 0 {
				tail = chunk[idx+1:]
			} else {
				tail = chunk
			}
			if len(tail) > 256 {
				tail = tail[len(tail)-256:]
			}
		}
		if err != nil {
			return
		}
	}
}
