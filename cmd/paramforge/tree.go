package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paramforge/engine/internal/types"
)

var treeCmd = &cobra.Command{
	Use:   "tree <document.json>",
	Short: "Render the feature timeline with rebuild status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadDocument(args[0])
		if err != nil {
			return err
		}
		res, err := runRebuild(args[0])
		if err != nil {
			return err
		}
		renderFeatureTree(cmd, snap, res.FeatureStatus)
		return nil
	},
}

// renderFeatureTree prints featureOrder as a flat, connector-prefixed
// list: the timeline is strictly linear, so there is no parent/child map to
// walk, just a single chain with box-drawing connectors and per-status
// coloring.
func renderFeatureTree(cmd *cobra.Command, snap *types.DocSnapshot, statuses map[types.ID]types.FeatureStatus) {
	out := cmd.OutOrStdout()
	for i, id := range snap.FeatureOrder {
		f := snap.FeaturesByID[id]
		status := statuses[id]

		var prefix string
		if i == len(snap.FeatureOrder)-1 {
			prefix = "└── "
		} else {
			prefix = "├── "
		}

		name := f.Name
		if name == "" {
			name = string(f.Type)
		}

		suffix := ""
		if f.Suppressed {
			suffix = mutedStyle.Render(" (suppressed)")
		} else if !f.IsVisible() {
			suffix = mutedStyle.Render(" (hidden)")
		}

		line := fmt.Sprintf("%s%s: %s [%s]%s",
			prefix, statusStyle(status).Render(string(f.Type)), name,
			accentStyle.Render(string(status)), suffix)
		fmt.Fprintln(out, line)
	}
}
