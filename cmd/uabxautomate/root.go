package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var chdirFlag bool
	var jsonFlag bool

	ctx := newCommandContext(&configFlag, &chdirFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "uabxautomate",
		Short:         "Extract textures, sprites and text assets from asset bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default ./uabxautomate.toml)")
	rootCmd.PersistentFlags().BoolVarP(&chdirFlag, "chdir", "r", false, "Resolve relative paths in the config against its directory")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Write machine-readable JSON to stdout")

	rootCmd.AddCommand(newExtractCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newStateCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
