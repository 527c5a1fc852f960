// Package config holds the replay run configuration: compiled-in
// defaults, optionally overlaid from a TOML file, with command line
// flags taking final precedence at the cmd layer.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/TritonDataCenter/toshstomp/internal/replay"
	"github.com/TritonDataCenter/toshstomp/internal/trace"
)

// Config holds all tunables for a replay run.
type Config struct {
	Workers   int      `toml:"workers"`    // worker pool size
	Clamp     bool     `toml:"clamp"`      // correct out-of-bounds operations instead of aborting
	TimeCap   Duration `toml:"time_cap"`   // ingestion time cap (0 disables)
	BlockSize int      `toml:"block_size"` // device block size for blkno conversion
}

// New returns a Config with the default values.
func New() *Config {
	return &Config{
		Workers:   replay.DefaultWorkers,          // enough for typical device trace concurrency
		Clamp:     false,                          // out-of-bounds is fatal unless asked for
		TimeCap:   Duration(trace.DefaultTimeCap), // bound replays to two minutes of trace time
		BlockSize: trace.DefaultBlockSize,         // conventional 512-byte device blocks
	}
}

// LoadFile overlays values from a TOML config file onto c. Keys absent
// from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Wrapf(err, "config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	return nil
}

// Validate rejects configurations a replay cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errors.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.BlockSize < 1 {
		return errors.Errorf("block size must be positive, got %d", c.BlockSize)
	}
	return nil
}

// Duration is a time.Duration that decodes from TOML duration strings
// such as "120s" or "2m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
