// Package housekeeping implements the cleanup around a run:
// the error-marker sweep or count before a run, the stale ".tmp"
// sweep, and the post-run relocation of failed sources and their markers
// under the error root.
package housekeeping

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/gwlsn/transcast/internal/config"
	"github.com/gwlsn/transcast/internal/eventbus"
	"github.com/gwlsn/transcast/internal/events"
	"github.com/gwlsn/transcast/internal/logger"
)

const markerExt = ".err"

// Housekeeper runs the filesystem cleanup around a run.
type Housekeeper struct {
	cfg *config.EffectiveConfig
	bus *eventbus.Bus
}

// New builds a Housekeeper for the run's configuration.
func New(cfg *config.EffectiveConfig, bus *eventbus.Bus) *Housekeeper {
	return &Housekeeper{cfg: cfg, bus: bus}
}

// PreRun sweeps (clean-errors on) or counts (off) error markers under
// every output root, and removes every stale ".tmp" partial. It returns
// the number of markers still on disk after the pass.
func (h *Housekeeper) PreRun() (int, error) {
	markers := 0
	for _, m := range h.cfg.Roots {
		err := walkIfPresent(m.Output, func(path string, d fs.DirEntry) {
			switch {
			case strings.HasSuffix(path, ".tmp"):
				if err := os.Remove(path); err != nil {
					logger.Warn("could not remove stale temp file", "path", path, "error", err)
				}
			case strings.HasSuffix(path, markerExt):
				if h.cfg.CleanErrors {
					if err := os.Remove(path); err != nil {
						logger.Warn("could not remove error marker", "path", path, "error", err)
						markers++
					}
				} else {
					markers++
				}
			}
		})
		if err != nil {
			return markers, fmt.Errorf("pre-run sweep of %s: %w", m.Output, err)
		}
	}
	// A configured scratch directory collects partials too.
	if h.cfg.TempPath != "" {
		err := walkIfPresent(h.cfg.TempPath, func(path string, d fs.DirEntry) {
			if strings.HasSuffix(path, ".tmp") {
				if err := os.Remove(path); err != nil {
					logger.Warn("could not remove stale temp file", "path", path, "error", err)
				}
			}
		})
		if err != nil {
			return markers, fmt.Errorf("pre-run sweep of %s: %w", h.cfg.TempPath, err)
		}
	}
	if markers > 0 {
		logger.Info("error markers present from previous runs", "count", markers, "clean_errors", h.cfg.CleanErrors)
	}
	return markers, nil
}

// PostRun relocates, for every error marker under an output root, the
// marker and its corresponding source under the error root, preserving
// the relative path. Above the configured threshold a non-interactive run
// relocates nothing and warns; an interactive run publishes a pause
// request on the bus and then relocates without waiting for an answer.
func (h *Housekeeper) PostRun(interactive bool) error {
	type pair struct {
		mapping config.RootMapping
		rel     string // marker path relative to the output root
	}
	var pairs []pair

	for _, m := range h.cfg.Roots {
		err := walkIfPresent(m.Output, func(path string, d fs.DirEntry) {
			if !strings.HasSuffix(path, markerExt) {
				return
			}
			rel, relErr := filepath.Rel(m.Output, path)
			if relErr != nil {
				return
			}
			pairs = append(pairs, pair{mapping: m, rel: rel})
		})
		if err != nil {
			return fmt.Errorf("post-run sweep of %s: %w", m.Output, err)
		}
	}

	if len(pairs) == 0 {
		return nil
	}
	if len(pairs) > h.cfg.ErrorMarkerThresh {
		if !interactive {
			logger.Warn("too many error markers to relocate without confirmation",
				"count", len(pairs), "threshold", h.cfg.ErrorMarkerThresh)
			return nil
		}
		h.bus.Publish(events.Event{
			Kind:   events.KindPauseRequested,
			Reason: fmt.Sprintf("confirm relocation of %d failed sources", len(pairs)),
		})
	}

	relocated := 0
	var bytes int64
	for _, p := range pairs {
		markerPath := filepath.Join(p.mapping.Output, p.rel)
		source := findSource(p.mapping.Input, p.rel)

		destMarker := filepath.Join(p.mapping.Error, p.rel)
		if err := relocate(markerPath, destMarker); err != nil {
			logger.Warn("could not relocate error marker", "path", markerPath, "error", err)
			continue
		}
		if source != "" {
			srcRel, _ := filepath.Rel(p.mapping.Input, source)
			if info, err := os.Stat(source); err == nil {
				bytes += info.Size()
			}
			if err := relocate(source, filepath.Join(p.mapping.Error, srcRel)); err != nil {
				logger.Warn("could not relocate failed source", "path", source, "error", err)
				continue
			}
		}
		relocated++
	}
	if relocated > 0 {
		logger.Info("relocated failed sources under error root",
			"count", relocated, "bytes", humanize.Bytes(uint64(bytes)))
	}
	return nil
}

// findSource locates the original source for a marker: same relative
// directory and base name under the input root, any extension.
func findSource(inputRoot, markerRel string) string {
	base := strings.TrimSuffix(filepath.Base(markerRel), markerExt)
	dir := filepath.Join(inputRoot, filepath.Dir(markerRel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == base {
			return filepath.Join(dir, name)
		}
	}
	return ""
}

// relocate moves a file creating destination parents, copying across
// filesystems when rename fails.
func relocate(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}

// walkIfPresent walks root calling fn for every regular file; a missing
// root is not an error (output trees are created lazily).
func walkIfPresent(root string, fn func(path string, d fs.DirEntry)) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		fn(path, d)
		return nil
	})
}
