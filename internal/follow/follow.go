// Package follow tails a record file while a server appends to it.
package follow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Follow calls emit with every complete line appended to path until ctx is
// cancelled. With fromStart set the existing content is emitted first. A file
// that is truncated or recreated, as happens when a new server starts, is
// read again from the beginning.
func Follow(ctx context.Context, path string, fromStart bool, emit func(line string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory so a file created after we start is still seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	t := &tail{path: path}
	if !fromStart {
		if info, err := os.Stat(path); err == nil {
			t.offset = info.Size()
		}
	}
	if err := t.drain(emit); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Create) {
				t.reset()
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := t.drain(emit); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}
}

type tail struct {
	path    string
	offset  int64
	partial strings.Builder
}

func (t *tail) reset() {
	t.offset = 0
	t.partial.Reset()
}

// drain reads from the last offset to the end of the file.
func (t *tail) drain(emit func(string)) error {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < t.offset {
		t.reset()
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	t.offset += int64(len(data))

	t.partial.Write(data)
	buffered := t.partial.String()
	last := strings.LastIndexByte(buffered, '\n')
	if last < 0 {
		return nil
	}
	for _, line := range strings.Split(buffered[:last], "\n") {
		emit(line)
	}
	t.partial.Reset()
	t.partial.WriteString(buffered[last+1:])
	return nil
}
