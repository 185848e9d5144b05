package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAndReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	in := map[string]int{"a": 1}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var out map[string]int
	found, err := ReadJSON(path, &out)
	if err != nil || !found {
		t.Fatalf("ReadJSON found=%v err=%v", found, err)
	}
	if out["a"] != 1 {
		t.Fatalf("unexpected value %v", out)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected temp file to be gone, got %d entries", len(entries))
	}
}

func TestReadJSONMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	var v []string
	found, err := ReadJSON(filepath.Join(dir, "missing.json"), &v)
	if found || err != nil {
		t.Fatalf("missing: found=%v err=%v", found, err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadJSON(bad, &v); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandHome("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Fatalf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/abs"); got != "/abs" {
		t.Fatalf("ExpandHome = %q", got)
	}
	if got := ExpandHome("~other"); !strings.HasPrefix(got, "~") {
		t.Fatalf("ExpandHome = %q", got)
	}
}
