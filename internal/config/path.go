package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir picks where certd keeps its archive and usage ledger:
// $XDG_DATA_HOME/certd when set, /var/lib/certd on hosts that have /var/lib,
// otherwise ~/.certd. Without a home directory it falls back to ./data.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "certd")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	if isDir("/var/lib") && writable("/var/lib") {
		return "/var/lib/certd"
	}
	return filepath.Join(home, ".certd")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".certd-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
