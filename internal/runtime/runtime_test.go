package runtime

import (
	"context"
	"path/filepath"
	"testing"

	cfgpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/config"
	pebblestore "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/storage/pebble"
)

func TestOpenCloseHealth(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.Redis() != nil {
		t.Fatalf("redis client without address")
	}
	if rt.Config().DataDir != dir {
		t.Fatalf("data dir override not applied")
	}
}

func TestOpenDefaultsOutputDir(t *testing.T) {
	dir := t.TempDir()
	cfg := cfgpkg.Default()
	cfg.OutputDir = ""
	rt, err := Open(Options{DataDir: dir, Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if got := rt.Files().Dir; got != filepath.Join(dir, "certificates") {
		t.Fatalf("output dir %s", got)
	}
	if err := rt.Ledger().MarkUsed(context.Background(), "k", "s"); err != nil {
		t.Fatalf("ledger: %v", err)
	}
}

func TestOpenRequiresDataDir(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DataDir = ""
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatalf("expected error")
	}
}
