// Package config loads the four process-wide settings spec.md §6
// enumerates from a TOML file, falling back to their defaults for any key
// the file omits or when no file exists at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds the process's enumerated settings (spec.md §6).
type Config struct {
	TorPort int    `toml:"tor_port"`
	Port    int    `toml:"port"`
	Host    string `toml:"host"`
	RootDir string `toml:"root_dir"`
}

// Default returns the spec-mandated defaults.
func Default() Config {
	return Config{
		TorPort: 19901,
		Port:    9919,
		Host:    "127.0.0.1",
		RootDir: "~/.concord",
	}
}

// Load reads path and overlays it on Default(), so any key the file omits
// keeps its default value. A missing file is not an error — Load returns
// Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, creating the parent directory if
// necessary. Used by concordd's "settings set" CLI subcommand.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}

// ExpandRootDir resolves a leading "~" in cfg.RootDir against the calling
// user's home directory, since TOML values are never shell-expanded.
func ExpandRootDir(cfg Config) (string, error) {
	if cfg.RootDir == "~" || len(cfg.RootDir) >= 2 && cfg.RootDir[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolve home directory: %w", err)
		}
		if cfg.RootDir == "~" {
			return home, nil
		}
		return filepath.Join(home, cfg.RootDir[2:]), nil
	}
	return cfg.RootDir, nil
}
