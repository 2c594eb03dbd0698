package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoServer is returned by Load when no server state file exists.
var ErrNoServer = errors.New("no running server")

// StateStore persists the running server's Session so that other commands
// can find it.
type StateStore interface {
	Save(s *Session) error
	Load() (*Session, error) // returns ErrNoServer if none exists
	Delete() error
}

type diskStore struct {
	path string
}

// NewStateStore returns a StateStore backed by the XDG data directory.
// Path: $XDG_DATA_HOME/replaymock/server.json or ~/.local/share/replaymock/server.json
func NewStateStore() (StateStore, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &diskStore{path: filepath.Join(dir, "server.json")}, nil
}

func dataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "replaymock"), nil
}

// Save writes s atomically through a temp file in the same directory.
func (d *diskStore) Save(s *Session) (err error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to persist server state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "server-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist server state: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist server state: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist server state: %w", err)
	}
	if err = os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("failed to persist server state: %w", err)
	}
	return nil
}

// Load reads the state file, returning ErrNoServer if there is none.
func (d *diskStore) Load() (*Session, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoServer
		}
		return nil, fmt.Errorf("failed to read server state: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse server state: %w", err)
	}
	return &s, nil
}

// Delete removes the state file. A missing file is not an error.
func (d *diskStore) Delete() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete server state: %w", err)
	}
	return nil
}
