package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalPut(t *testing.T) {
	dir := t.TempDir()
	s := NewLocal(dir).WithPrefix("batch-1/../x")
	loc, err := s.Put(context.Background(), "Ada_Lovelace.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasPrefix(loc, dir) {
		t.Fatalf("location %s escaped %s", loc, dir)
	}
	b, err := os.ReadFile(loc)
	if err != nil || string(b) != "%PDF" {
		t.Fatalf("read back: %q %v", b, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(loc))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestLocalPutRejectsPaths(t *testing.T) {
	s := NewLocal(t.TempDir())
	for _, name := range []string{"", "../evil.pdf", "a/b.pdf", ".."} {
		if _, err := s.Put(context.Background(), name, strings.NewReader("x")); err == nil {
			t.Fatalf("name %q accepted", name)
		}
	}
}
