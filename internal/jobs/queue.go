package jobs

import (
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gwlsn/transcast/internal/config"
	"github.com/gwlsn/transcast/internal/media"
)

// PendingItem is one queued unit of work: the discovered file plus the
// CPU-fallback flag set when a hardware-capability failure requeues it.
type PendingItem struct {
	File     media.VideoFile
	ForceCPU bool
}

// PendingQueue is the orchestrator's pending deque. It is
// mutated only by the driver goroutine, so it carries no lock; the path
// set exists to make refresh's membership checks cheap.
type PendingQueue struct {
	items []PendingItem
	paths map[string]struct{}
}

// NewPendingQueue creates an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{paths: make(map[string]struct{})}
}

// PushBack appends an item.
func (q *PendingQueue) PushBack(item PendingItem) {
	q.items = append(q.items, item)
	q.paths[item.File.Path] = struct{}{}
}

// PushFront prepends an item; used for CPU-fallback requeues and for
// returning a dropped item after a shutdown-cancelled acquire.
func (q *PendingQueue) PushFront(item PendingItem) {
	q.items = append([]PendingItem{item}, q.items...)
	q.paths[item.File.Path] = struct{}{}
}

// PopFront removes and returns the head item; ok is false when empty.
func (q *PendingQueue) PopFront() (PendingItem, bool) {
	if len(q.items) == 0 {
		return PendingItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	delete(q.paths, item.File.Path)
	return item, true
}

// Len returns the queue depth.
func (q *PendingQueue) Len() int {
	return len(q.items)
}

// Contains reports whether a source path is queued.
func (q *PendingQueue) Contains(path string) bool {
	_, ok := q.paths[path]
	return ok
}

// Prune removes every item for which keep returns false and returns how
// many were dropped; refresh uses it to shed files that vanished from
// disk.
func (q *PendingQueue) Prune(keep func(PendingItem) bool) int {
	kept := q.items[:0]
	removed := 0
	for _, item := range q.items {
		if keep(item) {
			kept = append(kept, item)
		} else {
			delete(q.paths, item.File.Path)
			removed++
		}
	}
	q.items = kept
	return removed
}

// Preview returns up to n head items for the UI's pending preview.
func (q *PendingQueue) Preview(n int) []PendingItem {
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]PendingItem, n)
	copy(out, q.items[:n])
	return out
}

// SortFiles orders discovered files per the configured queue-sort
// mode. All modes sort stably with the full path as the final
// tiebreak so a given tree always yields the same order for the same
// configuration ("rand" included, once a seed is fixed).
func SortFiles(files []media.VideoFile, mode config.QueueSortMode, seed int64, extOrder []string, roots []config.RootMapping) {
	byPath := func(i, j int) bool { return files[i].Path < files[j].Path }

	switch mode.Normalize() {
	case config.SortName:
		sort.SliceStable(files, func(i, j int) bool {
			ni, nj := filepath.Base(files[i].Path), filepath.Base(files[j].Path)
			if ni != nj {
				return ni < nj
			}
			return byPath(i, j)
		})
	case config.SortDir:
		sort.SliceStable(files, func(i, j int) bool {
			ri, rj := rootIndex(roots, files[i].Path), rootIndex(roots, files[j].Path)
			if ri != rj {
				return ri < rj
			}
			return byPath(i, j)
		})
	case config.SortSizeAsc:
		sort.SliceStable(files, func(i, j int) bool {
			if files[i].Size != files[j].Size {
				return files[i].Size < files[j].Size
			}
			return byPath(i, j)
		})
	case config.SortSizeDesc:
		sort.SliceStable(files, func(i, j int) bool {
			if files[i].Size != files[j].Size {
				return files[i].Size > files[j].Size
			}
			return byPath(i, j)
		})
	case config.SortExt:
		sort.SliceStable(files, func(i, j int) bool {
			ei, ej := extIndex(extOrder, files[i].Path), extIndex(extOrder, files[j].Path)
			if ei != ej {
				return ei < ej
			}
			return byPath(i, j)
		})
	case config.SortRand:
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))
		sort.SliceStable(files, byPath)
		rng.Shuffle(len(files), func(i, j int) {
			files[i], files[j] = files[j], files[i]
		})
	}
}

// rootIndex returns the position of the input root containing path, in
// configuration order; unmatched paths sort last.
func rootIndex(roots []config.RootMapping, path string) int {
	clean := filepath.Clean(path)
	for i, m := range roots {
		root := filepath.Clean(m.Input)
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return i
		}
	}
	return len(roots)
}

// extIndex returns the position of path's extension in the configured
// accepted-extensions order; unknown extensions partition last.
func extIndex(extOrder []string, path string) int {
	ext := strings.ToLower(filepath.Ext(path))
	for i, e := range extOrder {
		if strings.ToLower(e) == ext {
			return i
		}
	}
	return len(extOrder)
}
