package replay

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/fakeyudi/replaymock/internal/record"
	"github.com/fakeyudi/replaymock/internal/traffic"
)

// MismatchError is returned by Verify when a fresh recording made during
// replay differs from the trace it replayed.
type MismatchError struct {
	// Expected is the replayed trace, left untouched.
	Expected string
	// Actual is where the fresh recording was preserved.
	Actual string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("replayed traffic does not match %s: the fresh recording was kept at %s; "+
		"rerun in record mode or update the stored trace by hand", e.Expected, e.Actual)
}

// Verify compares the recording made while replaying with the replayed trace.
// Identical content removes the recording. Otherwise the recording is moved
// next to the trace as <replayFile>.tmp and a *MismatchError is returned.
func Verify(recordFile, replayFile string) error {
	actual, err := readNormalized(recordFile)
	if err != nil {
		return err
	}
	expected, err := readNormalized(replayFile)
	if err != nil {
		return err
	}
	if bytes.Equal(actual, expected) {
		if err := os.Remove(recordFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing verified recording: %w", err)
		}
		return nil
	}

	kept := replayFile + ".tmp"
	if err := os.Rename(recordFile, kept); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("preserving mismatched recording: %w", err)
		}
		// Nothing was recorded at all; keep an empty file as the evidence.
		if err := os.WriteFile(kept, nil, 0o644); err != nil {
			return fmt.Errorf("preserving mismatched recording: %w", err)
		}
	}
	return &MismatchError{Expected: replayFile, Actual: kept}
}

// readNormalized reads path with universal line endings and without --TIM:
// lines, which differ on every run. A missing file reads as empty.
func readNormalized(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))

	var kept bytes.Buffer
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if bytes.HasPrefix(line, []byte(record.TimestampMarker)) {
			continue
		}
		kept.Write(line)
	}
	return kept.Bytes(), nil
}

// FilterIntercepts keeps the commands that a replay of trace can answer.
// Intercepting anything else would only turn live calls into replay misses.
func FilterIntercepts(commands []string, trace *Trace, reg *traffic.Registry) []string {
	present := make(map[string]bool)
	for _, ex := range trace.Exchanges() {
		b, ok := reg.ByTag(ex.Request.Tag)
		if !ok || b.Kind != traffic.KindCommand {
			continue
		}
		present[reg.Group(reg.NewUnit(traffic.KindCommand, ex.Request.Text))] = true
	}
	var kept []string
	for _, cmd := range commands {
		if present[cmd] {
			kept = append(kept, cmd)
		}
	}
	return kept
}
