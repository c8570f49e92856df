package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paramforge/engine/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or initialize engine configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init <paramforge.toml>",
	Short: "Write the default configuration to a TOML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", passStyle.Render("wrote"), args[0])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "units:       %s\n", cfg.Units)
		fmt.Fprintf(cmd.OutOrStdout(), "debounce_ms: %d\n", cfg.DebounceMS)
		fmt.Fprintf(cmd.OutOrStdout(), "kernel:      %s\n", cfg.Kernel)
		fmt.Fprintf(cmd.OutOrStdout(), "strict:      %v\n", cfg.Strict)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
