package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMergeOrdersByTimestamp(t *testing.T) {
	dir := isolate(t)
	late := filepath.Join(dir, "late.mock")
	early := filepath.Join(dir, "early.mock")
	writeFile(t, late, "--TIM:2024-01-01T10:00:02.000000\n<-CLI:B\n->SRV:b\n")
	writeFile(t, early, "--TIM:2024-01-01T10:00:01.000000\n<-CLI:A\n->SRV:a\n")

	out, err := executeCommand(rootCmd, "merge", "--out", "merged", late, early)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	lines := strings.Fields(out)
	want := []string{filepath.Join("merged", "01-early.mock"), filepath.Join("merged", "02-late.mock")}
	if strings.Join(lines, " ") != strings.Join(want, " ") {
		t.Fatalf("outputs = %q, want %q", lines, want)
	}
	data, err := os.ReadFile(filepath.Join(dir, want[0]))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "<-CLI:A\n->SRV:a\n" {
		t.Errorf("first file = %q", data)
	}
}

func TestMergeRejectsBadIgnore(t *testing.T) {
	dir := isolate(t)
	f := filepath.Join(dir, "a.mock")
	writeFile(t, f, "<-CLI:A\n")
	_, err := executeCommand(rootCmd, "merge", "--ignore", "zero", f)
	if err == nil || !strings.Contains(err.Error(), "--ignore") {
		t.Fatalf("err = %v, want an --ignore error", err)
	}
}
