package replay

import "fmt"

// Mode selects how a session treats traffic.
type Mode int

const (
	// ModeRecord forwards everything to real destinations and records it.
	ModeRecord Mode = iota
	// ModeReplay answers every request from the replay trace.
	ModeReplay
	// ModeReplayOldRecordNew replays traffic families present in the trace
	// and records everything else live.
	ModeReplayOldRecordNew
)

var modeNames = map[Mode]string{
	ModeRecord:             "record",
	ModeReplay:             "replay",
	ModeReplayOldRecordNew: "replay-old-record-new",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a mode name to its Mode.
func ParseMode(name string) (Mode, error) {
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q (want record, replay or replay-old-record-new)", name)
}
