package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paramforge/engine/internal/config"
	"github.com/paramforge/engine/internal/rebuild"
)

var exportBinary bool

// rebuildWithKernel loads path, rebuilds it once, and returns both the
// result and the live kernel session that produced it. Body ids never
// outlive their kernel session, so the export call that follows must run
// against the same session as the rebuild.
func rebuildWithKernel(path string) (*rebuild.Engine, *rebuild.RebuildResult, error) {
	snap, err := loadDocument(path)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	k, err := newKernel(cfg.Kernel)
	if err != nil {
		return nil, nil, err
	}
	engine := rebuild.New(k, nil)
	res := engine.RebuildAndTessellate(snap)
	return engine, res, nil
}

var exportSTLCmd = &cobra.Command{
	Use:   "export-stl <document.json> <out.stl>",
	Short: "Rebuild and export every surviving body as STL",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, res, err := rebuildWithKernel(args[0])
		if err != nil {
			return err
		}
		var out []byte
		for _, entry := range res.Bodies {
			b, err := engine.Kernel().ExportSTL(entry.BodyID, exportBinary)
			if err != nil {
				return fmt.Errorf("export stl body %s: %w", entry.Name, err)
			}
			out = append(out, b...)
		}
		if err := os.WriteFile(args[1], out, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", args[1], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d bodies)\n", passStyle.Render("wrote"), args[1], len(res.Bodies))
		return nil
	},
}

func init() {
	exportSTLCmd.Flags().BoolVar(&exportBinary, "binary", false, "write binary STL instead of ASCII")
}

var exportSTEPCmd = &cobra.Command{
	Use:   "export-step <document.json> <out.step>",
	Short: "Rebuild and export every surviving body as STEP",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, res, err := rebuildWithKernel(args[0])
		if err != nil {
			return err
		}
		var out []byte
		for _, entry := range res.Bodies {
			b, err := engine.Kernel().ExportSTEP(entry.BodyID)
			if err != nil {
				return fmt.Errorf("export step body %s: %w", entry.Name, err)
			}
			out = append(out, b...)
		}
		if err := os.WriteFile(args[1], out, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", args[1], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d bodies)\n", passStyle.Render("wrote"), args[1], len(res.Bodies))
		return nil
	},
}

var exportJSONCmd = &cobra.Command{
	Use:   "export-json <document.json> <out.json>",
	Short: "Re-serialize the current document snapshot after validating it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		if _, err := loadDocument(args[0]); err != nil {
			return err
		}
		if err := os.WriteFile(args[1], raw, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", args[1], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", passStyle.Render("wrote"), args[1])
		return nil
	},
}
