// Package session runs the capture/replay server and persists the state of
// the running server for the CLI.
package session

import "time"

// Session describes one server run between start and shutdown.
type Session struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	Address    string    `json:"address"`
	PID        int       `json:"pid"`
	RecordFile string    `json:"record_file,omitempty"`
	ReplayFile string    `json:"replay_file,omitempty"`
	StartTime  time.Time `json:"start_time"`
}
