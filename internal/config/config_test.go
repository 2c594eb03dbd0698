package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/fakeyudi/replaymock/internal/traffic"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWithoutSources(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := Defaults()
	if cfg.General != d.General {
		t.Errorf("General = %+v, want %+v", cfg.General, d.General)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

// Feature: replaymock, Property: later config sources override earlier ones
func TestLaterSourcesOverride(t *testing.T) {
	dir := t.TempDir()
	value := rapid.StringMatching(`[a-z][a-z0-9]{0,10}`)

	rapid.Check(t, func(rt *rapid.T) {
		first := value.Draw(rt, "first")
		second := value.Draw(rt, "second")
		secondSets := rapid.Bool().Draw(rt, "second_sets")

		a := writeSource(t, dir, "a.yaml", "command_line:\n  intercept_dir: "+first+"\n")
		body := "general:\n  multithreaded: false\n"
		if secondSets {
			body += "command_line:\n  intercept_dir: " + second + "\n"
		}
		b := writeSource(t, dir, "b.yaml", body)

		cfg, err := Load([]string{a, b})
		if err != nil {
			rt.Fatalf("Load: %v", err)
		}
		want := first
		if secondSets {
			want = second
		}
		if cfg.CommandLine.InterceptDir != want {
			rt.Fatalf("intercept_dir = %q, want %q", cfg.CommandLine.InterceptDir, want)
		}
		if cfg.General.Multithreaded {
			rt.Fatal("general.multithreaded from the second source was not applied")
		}
	})
}

func TestListsAndRcStyleSource(t *testing.T) {
	dir := t.TempDir()
	rc := writeSource(t, dir, "capture.rc", `command_line:
  intercepts: [git, make]
  asynchronous: [make]
file_edits:
  ignore: ["*.o", build]
replay:
  exclude: [client]
`)
	cfg, err := Load([]string{rc})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(cfg.CommandLine.Intercepts, []string{"git", "make"}) {
		t.Errorf("intercepts = %v", cfg.CommandLine.Intercepts)
	}
	if !slices.Equal(cfg.FileEdits.Ignore, []string{"*.o", "build"}) {
		t.Errorf("ignore = %v", cfg.FileEdits.Ignore)
	}
	kinds, err := cfg.ExcludedKinds()
	if err != nil || len(kinds) != 1 || kinds[0] != traffic.KindClientMessage {
		t.Errorf("ExcludedKinds = %v, %v", kinds, err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	src := writeSource(t, t.TempDir(), "c.yaml", "general:\n  log_level: WARN\n")
	t.Setenv("REPLAYMOCK_GENERAL_LOG_LEVEL", "DEBUG")
	t.Setenv("REPLAYMOCK_GENERAL_SERVER_ADDRESS", "127.0.0.1:9000")
	cfg, err := Load([]string{src})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.LogLevel != "DEBUG" || cfg.General.ServerAddress != "127.0.0.1:9000" {
		t.Errorf("General = %+v", cfg.General)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load([]string{filepath.Join(dir, "missing.yaml")}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing named source: %v", err)
	}
	bad := writeSource(t, dir, "bad.yaml", "general: [unterminated\n")
	_, err := Load([]string{bad})
	var perr *ParseError
	if !errors.As(err, &perr) || perr.Path != bad {
		t.Errorf("expected *ParseError for %s, got %v", bad, err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.General.ServerProtocol = "udp"
	cfg.General.LogLevel = "loud"
	cfg.Replay.Exclude = []string{"command", "telepathy"}
	cfg.CommandLine.Intercepts = []string{"/usr/bin/git"}

	err := cfg.Validate()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(verrs) != 4 {
		t.Errorf("got %d errors: %v", len(verrs), verrs)
	}
}
