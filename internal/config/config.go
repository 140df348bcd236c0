// Package config loads the optional artifex configuration file.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional artifex configuration file. All
// fields are pointers so that unset values can be told apart from
// explicit zeroes.
type Config struct {
	Hash    HashConfig    `toml:"hash"`
	Archive ArchiveConfig `toml:"archive"`
	Ledger  LedgerConfig  `toml:"ledger"`
}

// HashConfig holds hashing and cache defaults.
type HashConfig struct {
	ChunkSize *int `toml:"chunk_size"`
	Workers   *int `toml:"workers"`
}

// ArchiveConfig holds archiving pipeline defaults.
type ArchiveConfig struct {
	Readers *int    `toml:"readers"`
	Method  *string `toml:"method"`
}

// LedgerConfig controls the hash history database.
type LedgerConfig struct {
	Enabled *bool   `toml:"enabled"`
	Path    *string `toml:"path"`
}

// ConfigPath returns the resolved path to the config file.
func ConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "artifex", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
