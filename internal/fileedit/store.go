package fileedit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/spf13/afero"
)

// Store copies edited files into the record edit directory while recording
// and writes stored copies back over live paths while replaying.
type Store struct {
	fs        afero.Fs
	recordDir string
	replayDir string

	mu   sync.Mutex
	used map[string]int
}

// NewStore returns a store. An empty directory disables that direction.
func NewStore(fs afero.Fs, recordDir, replayDir string) *Store {
	return &Store{fs: fs, recordDir: recordDir, replayDir: replayDir, used: make(map[string]int)}
}

// StoredName returns a name for root's stored copy that is unique within the
// session: the base name first, then <base>.edit_2, <base>.edit_3 and so on.
func (s *Store) StoredName(root string) string {
	base := filepath.Base(root)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[base]++
	if n := s.used[base]; n > 1 {
		return base + StoredSuffix + strconv.Itoa(n)
	}
	return base
}

// Save copies the changed paths under root into <recordDir>/<name>. Paths
// that no longer exist are skipped.
func (s *Store) Save(name, root string, changed []string) error {
	if s.recordDir == "" {
		return nil
	}
	dest := filepath.Join(s.recordDir, name)
	for _, p := range changed {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("storing edit of %s: %w", p, err)
		}
		target := dest
		if rel != "." {
			target = filepath.Join(dest, rel)
		}
		if err := s.copyPath(p, target); err != nil {
			return fmt.Errorf("storing edit of %s: %w", p, err)
		}
	}
	return nil
}

// Lookup finds a stored copy by the name recorded in a trace. Any uniquifier
// is part of the stored name.
func (s *Store) Lookup(name string) (path string, fileType FileType, ok bool) {
	if s.replayDir == "" {
		return "", "", false
	}
	path = filepath.Join(s.replayDir, name)
	info, err := s.fs.Stat(path)
	if err != nil {
		return "", "", false
	}
	if info.IsDir() {
		return path, TypeDirectory, true
	}
	return path, TypeFile, true
}

// Restore copies the stored tree over target.
func (s *Store) Restore(stored, target string) error {
	if err := s.copyPath(stored, target); err != nil {
		return fmt.Errorf("restoring %s onto %s: %w", stored, target, err)
	}
	return nil
}

// copyPath copies a file, link or directory tree from src to dst, creating
// parent directories as needed. A missing src copies nothing.
func (s *Store) copyPath(src, dst string) error {
	info, err := lstat(s.fs, src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return s.copyEntry(src, dst, info)
	}
	return afero.Walk(s.fs, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return s.fs.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		return s.copyEntry(p, target, info)
	})
}

func (s *Store) copyEntry(src, dst string, info os.FileInfo) error {
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return s.copyLink(src, dst)
	}

	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := s.fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// copyLink recreates a symbolic link. Filesystems without link support copy
// nothing.
func (s *Store) copyLink(src, dst string) error {
	reader, ok := s.fs.(afero.LinkReader)
	if !ok {
		return nil
	}
	linker, ok := s.fs.(afero.Linker)
	if !ok {
		return nil
	}
	dest, err := reader.ReadlinkIfPossible(src)
	if err != nil {
		return err
	}
	_ = s.fs.Remove(dst)
	return linker.SymlinkIfPossible(dest, dst)
}
