package replay

import (
	"slices"
	"sync"

	"github.com/fakeyudi/replaymock/internal/traffic"
)

// Response is one stored answer served back to a live request.
type Response struct {
	Kind traffic.Kind
	Text string
}

// Matcher serves the response blocks of a trace to live requests of matching
// kind and identity, each block at most once, in recorded order.
type Matcher struct {
	reg     *traffic.Registry
	mode    Mode
	exclude map[traffic.Kind]bool

	exchanges []Exchange
	// positions maps a request key to the indices of its exchanges.
	positions map[string][]int
	// groups holds kind/group pairs present in the trace.
	groups map[string]bool

	mu       sync.Mutex
	consumed []bool
	cursor   map[string]int
	misses   int
}

// NewMatcher indexes trace for replay. A nil trace replays nothing.
func NewMatcher(trace *Trace, reg *traffic.Registry, mode Mode, exclude []traffic.Kind) *Matcher {
	m := &Matcher{
		reg:       reg,
		mode:      mode,
		exclude:   make(map[traffic.Kind]bool, len(exclude)),
		positions: make(map[string][]int),
		groups:    make(map[string]bool),
		cursor:    make(map[string]int),
	}
	for _, k := range exclude {
		m.exclude[k] = true
	}
	if trace == nil {
		return m
	}
	for _, ex := range trace.Exchanges() {
		if ex.Request.Tag == "" {
			continue
		}
		b, ok := reg.ByTag(ex.Request.Tag)
		if !ok || b.ResponseOnly {
			continue
		}
		u := reg.NewUnit(b.Kind, ex.Request.Text)
		key := requestKey(b.Kind, reg.Identity(u))
		m.positions[key] = append(m.positions[key], len(m.exchanges))
		m.groups[groupKey(b.Kind, reg.Group(u))] = true
		m.exchanges = append(m.exchanges, ex)
	}
	m.consumed = make([]bool, len(m.exchanges))
	return m
}

func requestKey(k traffic.Kind, identity string) string {
	return k.String() + "\x00" + identity
}

func groupKey(k traffic.Kind, group string) string {
	return k.String() + "\x00" + group
}

// Mode returns the session mode the matcher was built for.
func (m *Matcher) Mode() Mode {
	return m.mode
}

// IsActiveFor reports whether u is answered from the trace rather than
// forwarded to its real destination.
func (m *Matcher) IsActiveFor(u traffic.Unit) bool {
	if m.reg.IsResponseOnly(u.Kind) || m.exclude[u.Kind] {
		return false
	}
	switch m.mode {
	case ModeReplay:
		return true
	case ModeReplayOldRecordNew:
		return m.groups[groupKey(u.Kind, m.reg.Group(u))]
	default:
		return false
	}
}

// IsActiveForAll reports whether no traffic at all reaches real destinations,
// in which case edit timestamps are not worth collecting.
func (m *Matcher) IsActiveForAll() bool {
	return m.mode == ModeReplay && len(m.exclude) == 0
}

// ReadResponses consumes the next unread exchange whose request matches u and
// returns its responses of the given kinds (all response kinds when kinds is
// nil). found is false when no unread matching request is left.
func (m *Matcher) ReadResponses(u traffic.Unit, kinds []traffic.Kind) (responses []Response, found bool) {
	key := requestKey(u.Kind, m.reg.Identity(u))

	m.mu.Lock()
	positions := m.positions[key]
	i := m.cursor[key]
	if i >= len(positions) {
		m.misses++
		m.mu.Unlock()
		return nil, false
	}
	idx := positions[i]
	m.cursor[key] = i + 1
	m.consumed[idx] = true
	m.mu.Unlock()

	for _, e := range m.exchanges[idx].Responses {
		b, ok := m.reg.ByTag(e.Tag)
		if !ok {
			continue
		}
		if kinds != nil && !slices.Contains(kinds, b.Kind) {
			continue
		}
		responses = append(responses, Response{Kind: b.Kind, Text: e.Text})
	}
	return responses, true
}

// Unread returns the exchanges no live request has consumed, in trace order.
func (m *Matcher) Unread() []Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	var unread []Exchange
	for i, ex := range m.exchanges {
		if !m.consumed[i] {
			unread = append(unread, ex)
		}
	}
	return unread
}

// Misses returns how many live requests found nothing to replay.
func (m *Matcher) Misses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.misses
}
