package fileedit

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// IgnoreFileName is the per-directory file listing extra ignore patterns.
const IgnoreFileName = ".replaymockignore"

// DefaultIgnore is always skipped when walking edit roots.
var DefaultIgnore = []string{".git", ".svn", ".hg", "__pycache__", IgnoreFileName}

// ignoreSet matches names and paths against glob patterns.
type ignoreSet struct {
	patterns []string
}

func newIgnoreSet(patterns []string) ignoreSet {
	all := make([]string, 0, len(DefaultIgnore)+len(patterns))
	all = append(all, DefaultIgnore...)
	all = append(all, patterns...)
	return ignoreSet{patterns: all}
}

// with returns a copy extended by the patterns of the ignore file in dir.
// A missing or unreadable file leaves the set unchanged.
func (s ignoreSet) with(fs afero.Fs, dir string) ignoreSet {
	extra, err := readPatternFile(fs, filepath.Join(dir, IgnoreFileName))
	if err != nil || len(extra) == 0 {
		return s
	}
	return ignoreSet{patterns: append(append([]string(nil), s.patterns...), extra...)}
}

// matches reports whether path, relative to root, matches any pattern by base
// name or by relative path.
func (s ignoreSet) matches(root, path string) bool {
	base := filepath.Base(path)
	rel := path
	if r, err := filepath.Rel(root, path); err == nil {
		rel = r
	}
	for _, pattern := range s.patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// readPatternFile reads a gitignore-style file and returns non-empty,
// non-comment lines.
func readPatternFile(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.TrimSuffix(line, "/"))
	}
	return patterns, scanner.Err()
}
