package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := ExpandHome("~/model_repository")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != filepath.Join(home, "model_repository") {
		t.Fatalf("got %s", got)
	}
	if got, _ := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("absolute path changed: %s", got)
	}
	if got, _ := ExpandHome(""); got != "" {
		t.Fatalf("empty path changed: %s", got)
	}
}

func TestPathExists(t *testing.T) {
	d := t.TempDir()
	if !PathExists(d) {
		t.Fatal("temp dir should exist")
	}
	if PathExists(filepath.Join(d, "nope")) {
		t.Fatal("missing path reported as existing")
	}
}

func TestEnsureDir(t *testing.T) {
	d := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(d); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !PathExists(d) {
		t.Fatal("dir not created")
	}
	if err := EnsureDir(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
