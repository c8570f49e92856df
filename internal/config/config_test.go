package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paramforge/engine/internal/types"
)

func TestLoadWithNoFileOrEnvReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load(\"\") = %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load(missing file) = %+v, want defaults %+v", cfg, Default())
	}
}

func TestWriteDefaultThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paramforge.toml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("round-tripped config %+v differs from defaults %+v", cfg, Default())
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paramforge.toml")
	const custom = `units = "in"
debounce_ms = 32
kernel = "fake"
strict = false
`
	if err := os.WriteFile(path, []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Units != types.UnitsIN {
		t.Errorf("Units = %q, want %q", cfg.Units, types.UnitsIN)
	}
	if cfg.DebounceMS != 32 {
		t.Errorf("DebounceMS = %d, want 32", cfg.DebounceMS)
	}
	if cfg.Strict {
		t.Error("Strict = true, want false")
	}
}

func TestLoadRejectsInvalidUnits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paramforge.toml")
	if err := os.WriteFile(path, []byte(`units = "parsecs"`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected invalid units to be rejected")
	}
}
