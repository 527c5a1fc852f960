package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := New()

	if cfg.Workers != 128 {
		t.Fatalf("default workers %d, want 128", cfg.Workers)
	}
	if cfg.Clamp {
		t.Fatalf("clamp must default off")
	}
	if time.Duration(cfg.TimeCap) != 120*time.Second {
		t.Fatalf("default time cap %v, want 120s", time.Duration(cfg.TimeCap))
	}
	if cfg.BlockSize != 512 {
		t.Fatalf("default block size %d, want 512", cfg.BlockSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toshreplay.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestLoadFileOverlay(t *testing.T) {
	path := writeConfig(t, `
workers = 4
clamp = true
time_cap = "30s"
`)

	cfg := New()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("loading config: %v", err)
	}

	if cfg.Workers != 4 || !cfg.Clamp {
		t.Fatalf("config overlay not applied: %+v", cfg)
	}
	if time.Duration(cfg.TimeCap) != 30*time.Second {
		t.Fatalf("time cap %v, want 30s", time.Duration(cfg.TimeCap))
	}
	// keys absent from the file keep their defaults
	if cfg.BlockSize != 512 {
		t.Fatalf("block size %d after overlay, want default 512", cfg.BlockSize)
	}
}

func TestLoadFileUnknownKey(t *testing.T) {
	path := writeConfig(t, `worker_count = 4`)

	if err := New().LoadFile(path); err == nil {
		t.Fatalf("unknown config keys must be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := New()
	cfg.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero workers must not validate")
	}

	cfg = New()
	cfg.BlockSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero block size must not validate")
	}
}
