package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %#v", cfg)
	}
}

func TestLoadOverlaysPartialFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concord.toml")
	if err := os.WriteFile(path, []byte(`port = 7000`+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	want.Port = 7000
	if cfg != want {
		t.Fatalf("expected %#v, got %#v", want, cfg)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concord.toml")
	if err := os.WriteFile(path, []byte(`not = [valid`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error decoding malformed TOML")
	}
}

func TestExpandRootDirResolvesTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available in this environment")
	}
	cfg := Default()
	got, err := ExpandRootDir(cfg)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := filepath.Join(home, ".concord")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestExpandRootDirLeavesAbsolutePathUnchanged(t *testing.T) {
	cfg := Default()
	cfg.RootDir = "/var/lib/concord"
	got, err := ExpandRootDir(cfg)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != cfg.RootDir {
		t.Fatalf("expected unchanged path, got %q", got)
	}
}
