package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("got %+v, want %+v", cfg, Default())
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lox.toml")
	contents := `
[gc]
initial-threshold-bytes = 4096
growth-factor = 1.5

[limits]
frames-max = 32
stack-slots-per-frame = 128
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GC.InitialThresholdBytes != 4096 {
		t.Errorf("InitialThresholdBytes = %d, want 4096", cfg.GC.InitialThresholdBytes)
	}
	if cfg.GC.GrowthFactor != 1.5 {
		t.Errorf("GrowthFactor = %v, want 1.5", cfg.GC.GrowthFactor)
	}
	if cfg.Limits.FramesMax != 32 {
		t.Errorf("FramesMax = %d, want 32", cfg.Limits.FramesMax)
	}
	if cfg.Limits.StackSlotsPerFrame != 128 {
		t.Errorf("StackSlotsPerFrame = %d, want 128", cfg.Limits.StackSlotsPerFrame)
	}
}

func TestLoadMalformedFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lox.toml")
	if err := os.WriteFile(path, []byte("not valid toml [[["), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestConfigNewVMAcceptsOverriddenLimits(t *testing.T) {
	cfg := Default()
	cfg.Limits.FramesMax = 4
	cfg.Limits.StackSlotsPerFrame = 16

	vm := cfg.NewVM()
	if vm == nil {
		t.Fatal("NewVM returned nil")
	}
}
