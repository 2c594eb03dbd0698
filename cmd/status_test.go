package cmd

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/replaymock/internal/session"
)

// Feature: replaymock, Property: status reports the saved server
func TestStatusReportsSavedServer(t *testing.T) {
	isolate(t)
	store, err := session.NewStateStore()
	if err != nil {
		t.Fatalf("NewStateStore: %v", err)
	}

	rapid.Check(t, func(rt *rapid.T) {
		s := &session.Session{
			ID:         rapid.StringMatching(`[a-f0-9-]{8,36}`).Draw(rt, "id"),
			Mode:       rapid.SampledFrom([]string{"record", "replay", "replay-old-record-new"}).Draw(rt, "mode"),
			Address:    fmt.Sprintf("127.0.0.1:%d", rapid.IntRange(1, 65535).Draw(rt, "port")),
			PID:        rapid.IntRange(1, 1<<20).Draw(rt, "pid"),
			RecordFile: rapid.StringMatching(`[a-z]{0,12}`).Draw(rt, "record"),
			StartTime:  time.Now().Add(-time.Duration(rapid.IntRange(0, 3600).Draw(rt, "age")) * time.Second),
		}
		if err := store.Save(s); err != nil {
			rt.Fatalf("Save: %v", err)
		}

		out, err := executeCommand(rootCmd, "status")
		if err != nil {
			rt.Fatalf("status command error: %v", err)
		}
		for _, want := range []string{"Session: " + s.ID, "Mode: " + s.Mode, "Address: " + s.Address, fmt.Sprintf("PID: %d", s.PID)} {
			if !strings.Contains(out, want) {
				rt.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
		if s.RecordFile == "" && strings.Contains(out, "Record file:") {
			rt.Errorf("empty record file should not be printed:\n%s", out)
		}
	})
}

func TestStatusNoServer(t *testing.T) {
	isolate(t)
	out, err := executeCommand(rootCmd, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "no running server") {
		t.Errorf("expected %q, got %q", "no running server", out)
	}
}

func TestServeRefusesSecondServer(t *testing.T) {
	isolate(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	store, err := session.NewStateStore()
	if err != nil {
		t.Fatalf("NewStateStore: %v", err)
	}
	if err := store.Save(&session.Session{ID: "live", Address: l.Addr().String(), StartTime: time.Now()}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := executeCommand(rootCmd, "serve")
	if err == nil {
		t.Fatal("expected an error while another server is running, got nil")
	}
	if combined := out + err.Error(); !strings.Contains(combined, "server already running") {
		t.Errorf("expected error to contain %q, got: %q", "server already running", combined)
	}
}

func TestServeRejectsUnknownMode(t *testing.T) {
	isolate(t)
	_, err := executeCommand(rootCmd, "serve", "--mode", "rewind")
	if err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("err = %v, want unknown mode", err)
	}
}
