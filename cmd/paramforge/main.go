// Command paramforge is the out-of-process entry point for the rebuild
// engine: it has no UI of its own, but exposes the engine's document
// lifecycle (load, validate, rebuild, inspect the feature timeline, export)
// as cobra subcommands — one file per subcommand, a package-level rootCmd,
// global persistent flags for --json and config path.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	configPath string
	forceColor bool
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"})
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

var rootCmd = &cobra.Command{
	Use:   "paramforge",
	Short: "Rebuild engine CLI for parametric-solid documents",
	Long: `paramforge drives the parametric rebuild engine outside the UI layer.

It loads a JSON document snapshot, validates it
against the schema and structural invariants, rebuilds the feature timeline
against a GeometryKernel, and can render the timeline, export STL/STEP, or
watch a document file for changes.

Examples:
  paramforge load doc.json               # validate and summarize a document
  paramforge rebuild doc.json             # run one rebuild and print results
  paramforge tree doc.json                # render the feature timeline
  paramforge export-stl doc.json out.stl  # rebuild and export STL
  paramforge watch doc.json               # rebuild on every file change`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output machine-readable JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a paramforge.toml config file")
	rootCmd.PersistentFlags().BoolVar(&forceColor, "color", false, "force colored output even when stdout isn't a terminal")

	cobra.OnInitialize(func() {
		if forceColor {
			// lipgloss's own tty detection gives up on piped output (e.g.
			// `paramforge tree doc.json | less`); termenv.TrueColor forces
			// its renderer's color profile back on.
			lipgloss.SetColorProfile(termenv.TrueColor)
		}
	})

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(exportSTEPCmd)
	rootCmd.AddCommand(exportSTLCmd)
	rootCmd.AddCommand(exportJSONCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
