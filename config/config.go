// Package config loads the node's TOML configuration file, matching
// cmd/XDC's gethConfig conventions (decoded via github.com/naoina/toml):
// listen port, data directory, log file path, and peer seeds.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/naoina/toml"
)

// Config is the full set of node-level settings loaded from a TOML
// file, with field names matching their TOML keys under the naoina/toml
// default (case-insensitive, struct-field-name) convention.
type Config struct {
	// Port is the IPv4 port the node listens for peer connections on.
	// On conflict the node retries 10 successive ports
	// (transport.BindIPv4Loopback).
	Port uint16

	// DataDir is where the node's LevelDB blob store is persisted. Empty
	// means in-memory only (no persistence). The device identity is not
	// stored here; a fresh one is generated at every start.
	DataDir string

	// LogFile is the path log output is rotated into via lumberjack. If
	// empty, logs go to stderr.
	LogFile string

	// LogLevel is one of "trace", "debug", "info", "warn", "error",
	// "crit" (case-insensitive). Defaults to "info".
	LogLevel string

	// Peers is the set of peer addresses ("host:port") to dial at
	// startup, in addition to whatever inbound connections arrive.
	Peers []string

	// CacheSizeBytes sizes the fastcache read-through layer in front of
	// the LevelDB blob store.
	CacheSizeBytes int
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Port:           28404,
		LogLevel:       "info",
		CacheSizeBytes: 32 << 20,
	}
}

// Load reads and decodes a TOML config file at path, starting from
// Default() so any field the file omits keeps its default value.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return decode(f, path)
}

func decode(r io.Reader, path string) (Config, error) {
	cfg := Default()
	if err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
