package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fakeyudi/replaymock/internal/replay"
)

func TestCheckMatchRemovesRecording(t *testing.T) {
	dir := isolate(t)
	actual, expected := filepath.Join(dir, "actual.mock"), filepath.Join(dir, "expected.mock")
	writeFile(t, actual, "<-CLI:A\n->SRV:a\n")
	writeFile(t, expected, "<-CLI:A\r\n->SRV:a\r\n")

	out, err := executeCommand(rootCmd, "check", actual, expected)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "matches") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(actual); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("verified recording still present: %v", err)
	}
}

func TestCheckMismatchKeepsRecording(t *testing.T) {
	dir := isolate(t)
	actual, expected := filepath.Join(dir, "actual.mock"), filepath.Join(dir, "expected.mock")
	writeFile(t, actual, "<-CLI:A\n->SRV:changed\n")
	writeFile(t, expected, "<-CLI:A\n->SRV:a\n")

	_, err := executeCommand(rootCmd, "check", actual, expected)
	var mismatch *replay.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want *replay.MismatchError", err)
	}
	if mismatch.Actual != expected+".tmp" {
		t.Errorf("kept at %q, want %q", mismatch.Actual, expected+".tmp")
	}
}

func TestInterceptsFilteredByTrace(t *testing.T) {
	dir := isolate(t)
	trace := filepath.Join(dir, "trace.mock")
	writeFile(t, trace, "<-CMD:git status\n->OUT:clean\n<-CMD:make\n")
	writeFile(t, filepath.Join(dir, ".replaymock.yaml"), "command_line:\n  intercepts: [git, make, curl]\n")

	out, err := executeCommand(rootCmd, "intercepts")
	if err != nil {
		t.Fatalf("intercepts: %v", err)
	}
	if got := strings.Fields(out); strings.Join(got, ",") != "git,make,curl" {
		t.Errorf("configured intercepts = %q", got)
	}

	out, err = executeCommand(rootCmd, "intercepts", "--replay", trace)
	if err != nil {
		t.Fatalf("intercepts --replay: %v", err)
	}
	if got := strings.Fields(out); strings.Join(got, ",") != "git,make" {
		t.Errorf("filtered intercepts = %q, want git,make", got)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	dir := isolate(t)
	cfgFile := filepath.Join(dir, "bad.yaml")
	writeFile(t, cfgFile, "general:\n  server_protocol: pigeon\n")
	_, err := executeCommand(rootCmd, "--config", cfgFile, "status")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("err = %v, want invalid configuration", err)
	}
}
