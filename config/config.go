// Package config loads optional lox.toml tuning for the garbage collector
// and the VM's frame/stack limits.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/loxvm/lox/pkg/bytecode"
)

// GCConfig tunes the collector's allocation threshold and growth curve.
type GCConfig struct {
	InitialThresholdBytes int     `toml:"initial-threshold-bytes"`
	GrowthFactor          float64 `toml:"growth-factor"`
}

// LimitsConfig tunes the VM's call-frame and value-stack capacity.
type LimitsConfig struct {
	FramesMax          int `toml:"frames-max"`
	StackSlotsPerFrame int `toml:"stack-slots-per-frame"`
}

// Config is the parsed shape of a lox.toml file. Every field is optional;
// a zero value means "use the built-in default".
type Config struct {
	GC     GCConfig     `toml:"gc"`
	Limits LimitsConfig `toml:"limits"`
}

// Default returns a Config with every field at its built-in default,
// matching the values pkg/bytecode uses when no lox.toml is present.
func Default() Config {
	limits := bytecode.DefaultLimits()
	return Config{
		GC: GCConfig{
			InitialThresholdBytes: 1 << 20,
			GrowthFactor:          2.0,
		},
		Limits: LimitsConfig{
			FramesMax:          limits.FramesMax,
			StackSlotsPerFrame: limits.StackSlotsPerFrame,
		},
	}
}

// Load reads and parses path. A missing file is not an error: Load returns
// Default() unchanged, since lox.toml is optional. A present-but-malformed
// file is returned as an error for the caller to treat as a usage error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse error in %s: %w", path, err)
	}

	return cfg, nil
}

// NewVM constructs a VM sized and tuned by cfg.
func (c Config) NewVM() *bytecode.VM {
	gc := bytecode.NewGCWithOptions(c.GC.InitialThresholdBytes, c.GC.GrowthFactor)
	limits := bytecode.Limits{FramesMax: c.Limits.FramesMax, StackSlotsPerFrame: c.Limits.StackSlotsPerFrame}
	return bytecode.NewVMWithOptions(limits, gc)
}
