package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SegaraRai/uabxautomate/internal/config"
	"github.com/SegaraRai/uabxautomate/internal/incremental"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and manage the incremental state",
		Long: `Inspect and manage the incremental state.

The state maps every written destination to the fingerprint of the object it
came from, so unchanged objects are skipped by 'extract --incremental'.

Commands:
  list     - List all recorded destinations
  remove   - Forget specific destinations so they are rewritten next run
  clear    - Forget every destination`,
	}

	stateCmd.AddCommand(newStateListCommand(ctx))
	stateCmd.AddCommand(newStateRemoveCommand(ctx))
	stateCmd.AddCommand(newStateClearCommand(ctx))

	return stateCmd
}

func newStateListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all recorded destinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateStore(cmd, ctx, true, func(cfg *config.Config, store incremental.Store) error {
				records, err := store.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("list state: %w", err)
				}
				if ctx.JSONMode() {
					if records == nil {
						records = []incremental.Record{}
					}
					return writeJSON(cmd, records)
				}

				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintf(out, "Incremental state (%s): empty\n", cfg.Incremental.Path)
					return nil
				}

				const stampLayout = "2006-01-02 15:04"
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					updated := "unknown"
					if !rec.UpdatedAt.IsZero() {
						updated = rec.UpdatedAt.Local().Format(stampLayout)
					}
					rows = append(rows, []string{
						displayDest(cfg.Dest, rec.DestPath),
						shortFingerprint(rec.Fingerprint),
						rec.Source,
						updated,
					})
				}
				title := fmt.Sprintf("Incremental state: %d destinations", len(records))
				fmt.Fprintln(out, renderTable(title, []string{"Destination", "Fingerprint", "Source", "Updated"}, rows, nil))
				return nil
			})
		},
	}
}

func newStateRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <dest>...",
		Short: "Forget specific destinations",
		Long: `Forget specific destinations so the next incremental run rewrites them.

Relative paths are resolved against the configured dest root.

Example:
  uabxautomate state remove hero/walk01.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateStore(cmd, ctx, false, func(cfg *config.Config, store incremental.Store) error {
				removed := make([]string, 0, len(args))
				var missing []string
				for _, arg := range args {
					dest := resolveStateDest(cfg.Dest, arg)
					err := store.Delete(cmd.Context(), dest)
					switch {
					case errors.Is(err, incremental.ErrNotFound):
						missing = append(missing, arg)
					case err != nil:
						return fmt.Errorf("remove %s: %w", arg, err)
					default:
						removed = append(removed, dest)
					}
				}

				if ctx.JSONMode() {
					if missing == nil {
						missing = []string{}
					}
					if err := writeJSON(cmd, map[string]any{"removed": removed, "missing": missing}); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					for _, dest := range removed {
						fmt.Fprintf(out, "Removed %s\n", displayDest(cfg.Dest, dest))
					}
					for _, arg := range missing {
						fmt.Fprintf(out, "No record for %s\n", arg)
					}
				}
				if len(missing) > 0 {
					return fmt.Errorf("%d of %d destinations had no record", len(missing), len(args))
				}
				return nil
			})
		},
	}
}

func newStateClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget every destination",
		Long:  "Delete every record. The next incremental run rewrites all outputs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateStore(cmd, ctx, false, func(cfg *config.Config, store incremental.Store) error {
				records, err := store.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("list state: %w", err)
				}
				count := len(records)
				if count > 0 {
					if err := store.Clear(cmd.Context()); err != nil {
						return fmt.Errorf("clear state: %w", err)
					}
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"removed": count})
				}
				if count == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Incremental state is already empty")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d incremental state records\n", count)
				return nil
			})
		},
	}
}

// withStateStore opens the configured store for fn and closes it afterwards,
// reporting a failed flush as the command's error.
func withStateStore(cmd *cobra.Command, ctx *commandContext, readOnly bool, fn func(*config.Config, incremental.Store) error) (err error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.newCLILogger(cfg, "cli-state")
	if err != nil {
		return err
	}
	store, err := openStore(cmd, cfg, logger, readOnly)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("save incremental state: %w", closeErr)
		}
	}()
	return fn(cfg, store)
}

func resolveStateDest(root, dest string) string {
	if filepath.IsAbs(dest) {
		return filepath.Clean(dest)
	}
	return filepath.Join(root, dest)
}

// displayDest shows dest relative to root when it lies below it.
func displayDest(root, dest string) string {
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return dest
	}
	return filepath.ToSlash(rel)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
