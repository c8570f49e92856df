package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load <document.json>",
	Short: "Validate a document snapshot and summarize it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadDocument(args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", boldStyle.Render(snap.Meta.Name))
		fmt.Fprintf(cmd.OutOrStdout(), "  units:    %s\n", snap.Meta.Units)
		fmt.Fprintf(cmd.OutOrStdout(), "  features: %d\n", len(snap.FeatureOrder))
		if snap.State.RebuildGate != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  gate:     %s\n", *snap.State.RebuildGate)
		}
		fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render("✓ schema and invariants valid"))
		return nil
	},
}
