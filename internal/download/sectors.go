// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package download

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// sectorDirPattern matches committed sector directory names.
var sectorDirPattern = regexp.MustCompile(`^(\d+)_(\d+)_(\d+)$`)

// SectorFile is one archive inside a committed sector.
type SectorFile struct {
	Source string `json:"source"`
	Size   int64  `json:"size"`
}

// SectorInfo describes one committed sector directory.
type SectorInfo struct {
	Name  string       `json:"name"`
	Tile  string       `json:"tile"`
	Files []SectorFile `json:"files"`
}

// List returns the committed sectors under the root. Dot-prefixed entries
// are in-progress staging directories and are never listed, which is what
// makes the rename commit atomic from the client's point of view.
func (o *Orchestrator) List() ([]SectorInfo, error) {
	entries, err := os.ReadDir(o.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []SectorInfo{}, nil
		}
		return nil, err
	}

	infos := make([]SectorInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.IsDir() {
			continue
		}
		m := sectorDirPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}

		info := SectorInfo{
			Name: name,
			Tile: fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3]),
		}
		for _, src := range o.sources.All() {
			stat, statErr := os.Stat(filepath.Join(o.root, name, src.Output))
			if statErr != nil {
				continue
			}
			info.Files = append(info.Files, SectorFile{Source: src.Name, Size: stat.Size()})
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Delete removes a committed sector. The identifier passes the same
// validation as Enqueue, and the resolved directory must stay under the
// sector root after symlink resolution; anything else is refused.
func (o *Orchestrator) Delete(id string) error {
	if strings.Contains(id, "..") || strings.HasPrefix(id, "/") {
		return fmt.Errorf("%w: %q", ErrForbidden, id)
	}
	sector, err := ParseSector(id)
	if err != nil {
		return err
	}

	dir := o.sectorDir(sector)
	if err := o.withinRoot(dir); err != nil {
		return err
	}

	for _, src := range o.sources.All() {
		o.invalidate(filepath.Join(dir, src.Output))
	}
	return os.RemoveAll(dir)
}

// withinRoot rejects paths that escape the sector root after symlink
// resolution. The deepest existing ancestor is resolved so a missing leaf
// does not defeat the check.
func (o *Orchestrator) withinRoot(path string) error {
	root, err := filepath.EvalSymlinks(o.root)
	if err != nil {
		root = filepath.Clean(o.root)
	}

	probe := path
	for {
		resolved, evalErr := filepath.EvalSymlinks(probe)
		if evalErr == nil {
			rel, relErr := filepath.Rel(root, resolved)
			if relErr != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return fmt.Errorf("%w: %q", ErrForbidden, path)
			}
			return nil
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return fmt.Errorf("%w: %q", ErrForbidden, path)
		}
		probe = parent
	}
}
