package replay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fakeyudi/replaymock/internal/traffic"
)

const repeatedTrace = `<-CMD:date
->OUT:Mon
<-CMD:ls
->OUT:a
<-CMD:date
->OUT:Tue
->EXC:1
<-CLI:PING
->SRV:PONG
->ZZZ:unknown tag
`

func mustTrace(t *testing.T, text string) *Trace {
	t.Helper()
	trace, err := ParseTrace(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	return trace
}

func TestReadResponsesConsumesInOrder(t *testing.T) {
	reg := traffic.NewDefaultRegistry(traffic.Options{})
	m := NewMatcher(mustTrace(t, repeatedTrace), reg, ModeReplay, nil)
	date := reg.NewUnit(traffic.KindCommand, "date")

	first, ok := m.ReadResponses(date, nil)
	if !ok || len(first) != 1 || first[0].Text != "Mon" {
		t.Fatalf("first date = %+v, %v", first, ok)
	}
	second, ok := m.ReadResponses(date, nil)
	if !ok || len(second) != 2 || second[0].Text != "Tue" || second[1].Kind != traffic.KindExitCode {
		t.Fatalf("second date = %+v, %v", second, ok)
	}
	third, ok := m.ReadResponses(date, nil)
	if ok || third != nil {
		t.Fatalf("exhausted request should miss, got %+v", third)
	}
	if m.Misses() != 1 {
		t.Errorf("Misses = %d", m.Misses())
	}

	unread := m.Unread()
	if len(unread) != 2 || unread[0].Request.Text != "ls" || unread[1].Request.Tag != "CLI" {
		t.Fatalf("Unread = %+v", unread)
	}
}

func TestReadResponsesSkipsUnknownAndFilteredKinds(t *testing.T) {
	reg := traffic.NewDefaultRegistry(traffic.Options{})
	m := NewMatcher(mustTrace(t, repeatedTrace), reg, ModeReplay, nil)
	got, ok := m.ReadResponses(reg.NewUnit(traffic.KindClientMessage, "PING"), nil)
	if !ok || len(got) != 1 || got[0].Kind != traffic.KindServerMessage {
		t.Fatalf("PING = %+v", got)
	}

	m = NewMatcher(mustTrace(t, repeatedTrace), reg, ModeReplay, nil)
	m.ReadResponses(reg.NewUnit(traffic.KindCommand, "date"), nil)
	got, _ = m.ReadResponses(reg.NewUnit(traffic.KindCommand, "date"), []traffic.Kind{traffic.KindExitCode})
	if len(got) != 1 || got[0].Text != "1" {
		t.Fatalf("filtered responses = %+v", got)
	}
}

// Replaying a trace twice against the same live requests answers identically.
func TestReplayIsDeterministic(t *testing.T) {
	reg := traffic.NewDefaultRegistry(traffic.Options{})
	live := []traffic.Unit{
		reg.NewUnit(traffic.KindCommand, "date"),
		reg.NewUnit(traffic.KindClientMessage, "PING"),
		reg.NewUnit(traffic.KindCommand, "date"),
		reg.NewUnit(traffic.KindCommand, "ls"),
		reg.NewUnit(traffic.KindCommand, "date"),
	}
	run := func() string {
		m := NewMatcher(mustTrace(t, repeatedTrace), reg, ModeReplay, nil)
		var sb strings.Builder
		for _, u := range live {
			responses, _ := m.ReadResponses(u, nil)
			for _, r := range responses {
				sb.WriteString(r.Kind.String() + "=" + r.Text + ";")
			}
			sb.WriteString("|")
		}
		return sb.String()
	}
	if a, b := run(), run(); a != b {
		t.Fatalf("replays differ:\n%s\n%s", a, b)
	}
}

func TestIsActiveForByMode(t *testing.T) {
	reg := traffic.NewDefaultRegistry(traffic.Options{})
	trace := mustTrace(t, repeatedTrace)
	date := reg.NewUnit(traffic.KindCommand, "date --utc")
	cat := reg.NewUnit(traffic.KindCommand, "cat x")
	ping := reg.NewUnit(traffic.KindClientMessage, "anything")
	edit := reg.NewUnit(traffic.KindFileEdit, "report.txt")

	tests := []struct {
		name    string
		mode    Mode
		exclude []traffic.Kind
		unit    traffic.Unit
		want    bool
	}{
		{"record never replays", ModeRecord, nil, date, false},
		{"replay answers everything", ModeReplay, nil, cat, true},
		{"excluded kind goes live", ModeReplay, []traffic.Kind{traffic.KindClientMessage}, ping, false},
		{"responses are never requests", ModeReplay, nil, edit, false},
		{"old family replays", ModeReplayOldRecordNew, nil, date, true},
		{"new family records", ModeReplayOldRecordNew, nil, cat, false},
		{"client family present", ModeReplayOldRecordNew, nil, ping, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(trace, reg, tt.mode, tt.exclude)
			if got := m.IsActiveFor(tt.unit); got != tt.want {
				t.Errorf("IsActiveFor = %v, want %v", got, tt.want)
			}
		})
	}
	if !NewMatcher(trace, reg, ModeReplay, nil).IsActiveForAll() {
		t.Error("pure replay should be active for all traffic")
	}
	if NewMatcher(trace, reg, ModeReplay, []traffic.Kind{traffic.KindCall}).IsActiveForAll() {
		t.Error("replay with exclusions is not active for all traffic")
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeRecord, ModeReplay, ModeReplayOldRecordNew} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMode("playback"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}

func TestFilterIntercepts(t *testing.T) {
	reg := traffic.NewDefaultRegistry(traffic.Options{})
	got := FilterIntercepts([]string{"date", "cat", "ls"}, mustTrace(t, repeatedTrace), reg)
	if len(got) != 2 || got[0] != "date" || got[1] != "ls" {
		t.Fatalf("FilterIntercepts = %v", got)
	}
}

func TestReadTraceMissingFile(t *testing.T) {
	if _, err := ReadTrace(filepath.Join(t.TempDir(), "none.mock")); !os.IsNotExist(unwrapAll(err)) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func unwrapAll(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
}
