// Package record writes intercepted traffic to a record file in the order the
// requests arrived, however their processing interleaves.
package record

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
)

// StallError is returned by Close when requests still hold unwritten text or
// never reported completion.
type StallError struct {
	// Next is the sequence the sequencer was waiting to complete.
	Next    uint64
	Pending []uint64
}

func (e *StallError) Error() string {
	parts := make([]string, len(e.Pending))
	for i, seq := range e.Pending {
		parts[i] = fmt.Sprint(seq)
	}
	return fmt.Sprintf("record sequencer stalled waiting for request %d; unwritten requests: %s",
		e.Next, strings.Join(parts, ", "))
}

// Sequencer is a reorder buffer: text recorded for the request whose turn it
// is goes straight to the writer, everything else is held until every earlier
// request has completed. Sequences start at 1.
type Sequencer struct {
	mu        sync.Mutex
	w         io.Writer
	next      uint64
	cache     map[uint64]*strings.Builder
	completed map[uint64]bool
	err       error
}

// NewSequencer returns a Sequencer writing to w.
func NewSequencer(w io.Writer) *Sequencer {
	return &Sequencer{
		w:         w,
		next:      1,
		cache:     make(map[uint64]*strings.Builder),
		completed: make(map[uint64]bool),
	}
}

// Record appends text for request seq. Partial calls for the same sequence
// concatenate in call order.
func (s *Sequencer) Record(text string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq == s.next {
		s.writeFromCache()
		s.write(text)
		return
	}
	buf, ok := s.cache[seq]
	if !ok {
		buf = &strings.Builder{}
		s.cache[seq] = buf
	}
	buf.WriteString(text)
}

// RequestComplete marks request seq finished. If it was the one being waited
// for, it and every already-completed successor are flushed.
func (s *Sequencer) RequestComplete(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.next {
		s.completed[seq] = true
		return
	}
	for {
		s.writeFromCache()
		s.next++
		if !s.completed[s.next] {
			return
		}
		delete(s.completed, s.next)
	}
}

// Next returns the sequence currently allowed to write.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Pending returns the sequences holding buffered text or waiting on an
// earlier request, in ascending order.
func (s *Sequencer) Pending() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Sequencer) pendingLocked() []uint64 {
	seen := make(map[uint64]bool, len(s.cache)+len(s.completed))
	for seq := range s.cache {
		seen[seq] = true
	}
	for seq := range s.completed {
		seen[seq] = true
	}
	pending := make([]uint64, 0, len(seen))
	for seq := range seen {
		pending = append(pending, seq)
	}
	slices.Sort(pending)
	return pending
}

// Err returns the first write error, if any.
func (s *Sequencer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close reports a *StallError if any content is still buffered, and the first
// write error otherwise. It does not close the underlying writer.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pending := s.pendingLocked(); len(pending) > 0 {
		return &StallError{Next: s.next, Pending: pending}
	}
	return s.err
}

func (s *Sequencer) writeFromCache() {
	if buf, ok := s.cache[s.next]; ok {
		s.write(buf.String())
		delete(s.cache, s.next)
	}
}

func (s *Sequencer) write(text string) {
	if text == "" || s.w == nil {
		return
	}
	if _, err := io.WriteString(s.w, text); err != nil && s.err == nil {
		s.err = fmt.Errorf("writing record file: %w", err)
	}
}

// File is a record file opened for unbuffered appends.
type File struct {
	*os.File
}

// CreateFile truncates or creates the record file at path.
func CreateFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating record file: %w", err)
	}
	return &File{File: f}, nil
}

// Close syncs the file to disk before closing it.
func (f *File) Close() error {
	if err := f.File.Sync(); err != nil {
		f.File.Close()
		return fmt.Errorf("syncing record file: %w", err)
	}
	return f.File.Close()
}
