// Package config resolves engine configuration (units default, debounce
// interval, kernel selection) from environment variables and an optional
// TOML file. TOML suits the persisted config here: a small, flat settings
// document rather than a project manifest.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/paramforge/engine/internal/types"
)

// Config is the engine's resolved runtime configuration.
type Config struct {
	Units      types.Units `mapstructure:"units" toml:"units"`
	DebounceMS int         `mapstructure:"debounce_ms" toml:"debounce_ms"`
	Kernel     string      `mapstructure:"kernel" toml:"kernel"` // only "fake" (or empty) is built in
	Strict     bool        `mapstructure:"strict" toml:"strict"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		Units:      types.UnitsMM,
		DebounceMS: 16,
		Kernel:     "fake",
		Strict:     true,
	}
}

// Load resolves configuration from, in ascending priority: built-in
// defaults, an optional TOML file at path (skipped silently if path=="" or
// the file does not exist), and PARAMFORGE_-prefixed environment variables.
// Uses a per-call `viper.New()` rather than the package-level singleton so
// concurrent CLI invocations in tests never race on shared viper state.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("paramforge")
	v.AutomaticEnv()
	v.SetDefault("units", cfg.Units)
	v.SetDefault("debounce_ms", cfg.DebounceMS)
	v.SetDefault("kernel", cfg.Kernel)
	v.SetDefault("strict", cfg.Strict)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg.Units = types.Units(v.GetString("units"))
	cfg.DebounceMS = v.GetInt("debounce_ms")
	cfg.Kernel = v.GetString("kernel")
	cfg.Strict = v.GetBool("strict")

	if !types.ValidUnits(cfg.Units) {
		return cfg, fmt.Errorf("config: invalid units %q", cfg.Units)
	}
	return cfg, nil
}

// WriteDefault writes the built-in default configuration to path in TOML
// form, for `paramforge config init`.
func WriteDefault(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(Default())
}
