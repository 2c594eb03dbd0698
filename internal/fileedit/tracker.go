// Package fileedit detects files changed as a side effect of a request and
// maps replayed edits back onto live paths.
package fileedit

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Edit is a detected change under one watched root.
type Edit struct {
	Root string
	// Changed lists modified, created and removed paths. A removal is
	// reported by the highest removed directory whose parent still exists.
	Changed []string
}

type stamp struct {
	modTime int64
	size    int64
}

// Tracker holds the edit roots of the current request epoch, most recently
// touched first, and the (mtime, size) snapshot of every path below them.
// All methods are safe for concurrent use.
type Tracker struct {
	fs     afero.Fs
	ignore ignoreSet

	mu       sync.Mutex
	roots    []string
	snapshot map[string]stamp
}

// NewTracker returns a tracker reading through fs. Paths whose base name or
// root-relative path matches an ignore pattern are never watched.
func NewTracker(fs afero.Fs, ignore []string) *Tracker {
	return &Tracker{
		fs:       fs,
		ignore:   newIgnoreSet(ignore),
		snapshot: make(map[string]stamp),
	}
}

// AddRoots moves paths to the front of the root list. With snapshot set the
// current state below each path is remembered so that LatestEdits can tell
// what changed. It reports whether any path was given.
func (t *Tracker) AddRoots(paths []string, snapshot bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range paths {
		t.roots = slices.DeleteFunc(t.roots, func(r string) bool { return r == p })
		t.roots = slices.Insert(t.roots, 0, p)
		if !snapshot {
			continue
		}
		for _, sub := range t.walk(p) {
			if st, ok := t.stat(sub); ok {
				t.snapshot[sub] = st
			}
		}
	}
	return len(paths) > 0
}

// LatestEdits compares every root against the snapshot, records the new
// state and returns one Edit per root that changed.
func (t *Tracker) LatestEdits() []Edit {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		edits   []Edit
		removed []string
	)
	for _, root := range t.roots {
		var changed []string
		present := make(map[string]bool)
		for _, sub := range t.walk(root) {
			present[sub] = true
			st, ok := t.stat(sub)
			if !ok {
				continue
			}
			if old, seen := t.snapshot[sub]; !seen || old != st {
				changed = append(changed, sub)
				t.snapshot[sub] = st
			}
		}
		for _, old := range t.snapshotPaths() {
			if !isUnder(old, root) || present[old] {
				continue
			}
			removed = append(removed, old)
			if top := t.removedRoot(old); !slices.Contains(changed, top) {
				changed = append(changed, top)
			}
		}
		if len(changed) > 0 {
			edits = append(edits, Edit{Root: root, Changed: changed})
		}
	}
	for _, p := range removed {
		delete(t.snapshot, p)
	}
	return edits
}

// Reset starts a fresh epoch with no roots and an empty snapshot.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roots = nil
	t.snapshot = make(map[string]stamp)
}

// Roots returns the current roots, most recent first.
func (t *Tracker) Roots() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.roots)
}

// walk lists the files and symbolic links at or below path. Symbolic links to
// directories are listed but not descended into. A missing path lists nothing.
func (t *Tracker) walk(path string) []string {
	info, err := lstat(t.fs, path)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		return []string{path}
	}

	var paths []string
	rules := map[string]ignoreSet{}
	_ = afero.Walk(t.fs, path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if p == path {
			rules[p] = t.ignore.with(t.fs, p)
			return nil
		}
		if rules[filepath.Dir(p)].matches(path, p) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			rules[p] = rules[filepath.Dir(p)].with(t.fs, p)
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	return paths
}

func (t *Tracker) stat(path string) (stamp, bool) {
	info, err := t.fs.Stat(path)
	if err != nil {
		// A dangling link still counts as present.
		if info, err = lstat(t.fs, path); err != nil {
			return stamp{}, false
		}
	}
	return stamp{modTime: info.ModTime().UnixNano(), size: info.Size()}, true
}

func (t *Tracker) snapshotPaths() []string {
	paths := make([]string, 0, len(t.snapshot))
	for p := range t.snapshot {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// removedRoot climbs from a removed path to the highest removed ancestor.
func (t *Tracker) removedRoot(path string) string {
	for {
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		if _, err := lstat(t.fs, parent); err == nil {
			return path
		}
		path = parent
	}
}

func isUnder(path, root string) bool {
	return path == root || strings.HasPrefix(path, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator))
}

func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fs.Stat(path)
}
