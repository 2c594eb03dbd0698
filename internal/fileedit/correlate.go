package fileedit

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrNoCandidate is returned by Correlate when no watched root can take a
// replayed edit.
var ErrNoCandidate = errors.New("no candidate for replayed file edit")

// StoredSuffix separates a stored edit's base name from its uniquifier.
const StoredSuffix = ".edit_"

// FileType distinguishes stored edits of single files from whole trees.
type FileType string

const (
	TypeFile      FileType = "file"
	TypeDirectory FileType = "directory"
)

// Correlate picks the watched root a replayed edit named name applies to.
// An exact base-name match not yet in claimed wins and is added to claimed.
// Otherwise the root with the highest MatchScore wins, the most recently
// added root on ties. Roots of the wrong type are skipped.
func (t *Tracker) Correlate(name string, fileType FileType, claimed map[string]bool) (string, error) {
	base, _, _ := strings.Cut(name, StoredSuffix)

	t.mu.Lock()
	defer t.mu.Unlock()

	best, bestScore := "", -1
	for _, candidate := range t.roots {
		if info, err := t.fs.Stat(candidate); err == nil {
			if (fileType == TypeDirectory && !info.IsDir()) || (fileType == TypeFile && info.IsDir()) {
				continue
			}
		}
		candidateName := filepath.Base(candidate)
		if candidateName == base && !claimed[candidate] {
			claimed[candidate] = true
			return candidate, nil
		}
		if score := MatchScore(base, candidateName); score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if best == "" {
		return "", ErrNoCandidate
	}
	return best, nil
}

// MatchScore is the length of the common prefix plus the length of the common
// suffix of two names. Stored copies, whose names contain StoredSuffix, score
// -1 so they are never chosen.
func MatchScore(given, actual string) int {
	if strings.Contains(actual, StoredSuffix) {
		return -1
	}
	score := 0
	for score < len(given) && score < len(actual) && given[score] == actual[score] {
		score++
	}
	suffix := 0
	for suffix < len(given) && suffix < len(actual) && given[len(given)-1-suffix] == actual[len(actual)-1-suffix] {
		suffix++
	}
	return score + suffix
}
