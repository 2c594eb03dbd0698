package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/replay"
)

// executeCommand runs a cobra command with the given args and captures combined output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// isolate points every per-user location at a fresh temp dir and resets flag
// values left over from earlier executions.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "data"))
	t.Setenv("HOME", tmp)
	t.Chdir(tmp)

	configSources = nil
	plainOutput = false
	stopAddr = ""
	execAddr = ""
	sendFlags.addr, sendFlags.timeout = "", time.Minute
	interceptsReplay = ""
	mergeFlags.out, mergeFlags.sep, mergeFlags.ext, mergeFlags.ignore, mergeFlags.parse = "", "-", "", nil, ""
	serveFlags.mode, serveFlags.addr = replay.ModeRecord.String(), "127.0.0.1:0"
	serveFlags.record, serveFlags.replay, serveFlags.recordEdits, serveFlags.replayEdits = "", "", "", ""
	serveFlags.verify, serveFlags.metricsAddr = false, ""
	return tmp
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}
