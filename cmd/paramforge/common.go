package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/paramforge/engine/internal/config"
	"github.com/paramforge/engine/internal/kernel"
	"github.com/paramforge/engine/internal/kernel/fake"
	"github.com/paramforge/engine/internal/rebuild"
	"github.com/paramforge/engine/internal/types"
	"github.com/paramforge/engine/internal/validate"
)

// loadDocument reads and validates a document snapshot from path, checking
// both schema and structural invariants. Schema validation failure is
// fatal, so this returns an error rather than a partial snapshot.
func loadDocument(path string) (*types.DocSnapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	snap, err := validate.ValidateDocument(raw, cfg.Strict)
	if err != nil {
		return nil, fmt.Errorf("document invalid: %w", err)
	}
	return snap, nil
}

// newKernel returns the configured GeometryKernel implementation. Only
// "fake" (the deterministic in-memory kernel used throughout the engine's
// own test suite) is wired today; a native OCCT binding is an external
// capability this repository only defines the interface for.
func newKernel(kind string) (kernel.GeometryKernel, error) {
	var k kernel.GeometryKernel
	switch kind {
	case "", "fake":
		k = fake.NewKernel()
	default:
		return nil, fmt.Errorf("unknown kernel %q (only \"fake\" is built in)", kind)
	}
	if err := kernel.InitWithRetry(context.Background(), k); err != nil {
		return nil, fmt.Errorf("kernel init: %w", err)
	}
	return k, nil
}

// runRebuild loads path, rebuilds it once against the configured kernel,
// and returns the result.
func runRebuild(path string) (*rebuild.RebuildResult, error) {
	snap, err := loadDocument(path)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	k, err := newKernel(cfg.Kernel)
	if err != nil {
		return nil, err
	}
	engine := rebuild.New(k, nil)
	return engine.RebuildAndTessellate(snap), nil
}

func statusStyle(s types.FeatureStatus) lipgloss.Style {
	switch s {
	case types.StatusComputed:
		return passStyle
	case types.StatusError:
		return failStyle
	default:
		return mutedStyle
	}
}
