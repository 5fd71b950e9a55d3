// Package scanner implements file discovery: a lazy, deterministic,
// depth-first sequence of VideoFile values for one input root, pruning
// the configured output/error subtrees. Built on filepath.WalkDir, which
// already guarantees lexicographic directory order; stat is skipped for
// entries the extension filter rejects.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gwlsn/transcast/internal/media"
)

// Counters reports how many candidate files were skipped and why, for the
// scan summary.
type Counters struct {
	IgnoredTooSmall int
	IgnoredWrongExt int
	Discovered      int
}

// Scanner discovers candidate VideoFiles under an input root.
type Scanner struct {
	extensions map[string]struct{}
	minSize    int64
}

// New builds a Scanner from the accepted-extensions set (case-insensitive,
// dot-prefixed) and the minimum input-size threshold in bytes.
func New(acceptedExtensions []string, minSizeBytes int64) *Scanner {
	exts := make(map[string]struct{}, len(acceptedExtensions))
	for _, e := range acceptedExtensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	return &Scanner{extensions: exts, minSize: minSizeBytes}
}

// Scan walks root depth-first in lexicographic directory order (the order
// fs.ReadDir/WalkDir already guarantees), pruning any directory whose name
// matches outputLeaf or errorLeaf, and calls emit for every file that
// passes the extension and size filters. It returns once the walk
// completes; ctx cancellation stops it early. The returned Counters
// reflect the whole pass, including files that were rejected.
func (s *Scanner) Scan(ctx context.Context, root, outputLeaf, errorLeaf string, emit func(media.VideoFile)) (Counters, error) {
	var c Counters

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if walkErr != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if name := d.Name(); name == outputLeaf || name == errorLeaf {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := s.extensions[ext]; !ok {
			c.IgnoredWrongExt++
			return nil
		}

		// Symlinks to files are followed via Stat; WalkDir never descends
		// into a symlinked directory, so directory cycles are never
		// followed. A symlink resolving to a directory is not a candidate.
		var info fs.FileInfo
		var infoErr error
		if d.Type()&fs.ModeSymlink != 0 {
			info, infoErr = os.Stat(path)
			if infoErr == nil && info.IsDir() {
				return nil
			}
		} else {
			info, infoErr = d.Info()
		}
		if infoErr != nil {
			return nil
		}
		if info.Size() < s.minSize {
			c.IgnoredTooSmall++
			return nil
		}

		c.Discovered++
		emit(media.VideoFile{Path: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return c, err
	}
	return c, nil
}

// IsCompressed reports whether path already has an output at outputPath
// whose mtime is not older than the source's, the mtime/path rule used by
// queue refresh
// to decide whether a source still needs work.
func IsCompressed(sourcePath, outputPath string) bool {
	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return false
	}
	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return false
	}
	return !outInfo.ModTime().Before(srcInfo.ModTime())
}
