package fileedit

import (
	"testing"

	"github.com/spf13/afero"
)

func readMem(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestStoredNameUniquifies(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), "/rec", "")
	got := []string{s.StoredName("/a/out.txt"), s.StoredName("/b/out.txt"), s.StoredName("/c/out.txt")}
	want := []string{"out.txt", "out.txt.edit_2", "out.txt.edit_3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("StoredName #%d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSaveThenRestoreTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeMem(t, fs, "/live/out/a.txt", "A")
	writeMem(t, fs, "/live/out/sub/b.txt", "B")

	rec := NewStore(fs, "/edits", "")
	if err := rec.Save("out", "/live/out", []string{"/live/out/a.txt", "/live/out/sub/b.txt", "/live/out/gone"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := readMem(t, fs, "/edits/out/sub/b.txt"); got != "B" {
		t.Errorf("stored b.txt = %q", got)
	}

	rep := NewStore(fs, "", "/edits")
	stored, typ, ok := rep.Lookup("out")
	if !ok || typ != TypeDirectory || stored != "/edits/out" {
		t.Fatalf("Lookup = %q, %q, %v", stored, typ, ok)
	}
	if err := rep.Restore(stored, "/replayed/out"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := readMem(t, fs, "/replayed/out/a.txt"); got != "A" {
		t.Errorf("restored a.txt = %q", got)
	}
	if _, _, ok := rep.Lookup("missing"); ok {
		t.Error("Lookup found a name that was never stored")
	}
}

func TestSaveSingleFileRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeMem(t, fs, "/live/result.csv", "1,2")
	s := NewStore(fs, "/edits", "/edits")
	if err := s.Save("result.csv", "/live/result.csv", []string{"/live/result.csv"}); err != nil {
		t.Fatal(err)
	}
	if _, typ, ok := s.Lookup("result.csv"); !ok || typ != TypeFile {
		t.Fatalf("Lookup type = %q, %v", typ, ok)
	}
}

func TestSaveWithoutRecordDirIsNoop(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeMem(t, fs, "/live/x", "x")
	if err := NewStore(fs, "", "").Save("x", "/live/x", []string{"/live/x"}); err != nil {
		t.Fatal(err)
	}
}
