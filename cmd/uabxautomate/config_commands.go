package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SegaraRai/uabxautomate/internal/config"
)

const defaultConfigPath = "uabxautomate.toml"

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand(ctx))

	return configCmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Long:        "Create a sample configuration file at --config (default ./uabxautomate.toml).",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := defaultConfigPath
			if ctx.configFlag != nil && strings.TrimSpace(*ctx.configFlag) != "" {
				target = strings.TrimSpace(*ctx.configFlag)
			}
			expanded, err := config.ExpandPath(target)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			target = expanded

			if overwrite {
				if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("remove existing config: %w", err)
				}
			}
			if err := config.CreateSample(target); err != nil {
				if !overwrite && strings.Contains(err.Error(), "already exists") {
					return fmt.Errorf("%w (use --overwrite to replace it)", err)
				}
				return fmt.Errorf("create sample config: %w", err)
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{"path": target})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit src, dest and the [[targets]] entries before running 'uabxautomate extract'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"path":        ctx.configPath,
					"valid":       true,
					"src":         cfg.Src,
					"dest":        cfg.Dest,
					"targets":     len(cfg.Targets),
					"workers":     cfg.WorkerCount(),
					"incremental": cfg.Incremental.Enabled,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			fmt.Fprintf(out, "Source:      %s\n", cfg.Src)
			fmt.Fprintf(out, "Destination: %s\n", cfg.Dest)
			fmt.Fprintf(out, "Targets:     %d\n", len(cfg.Targets))
			fmt.Fprintf(out, "Workers:     %d\n", cfg.WorkerCount())
			fmt.Fprintf(out, "Incremental: %s (%s, %s)\n", yesNo(cfg.Incremental.Enabled), cfg.Incremental.Backend, cfg.Incremental.Path)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
