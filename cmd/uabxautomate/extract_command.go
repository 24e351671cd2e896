package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SegaraRai/uabxautomate/internal/extract"
	"github.com/SegaraRai/uabxautomate/internal/logging"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var incrementalFlag bool
	var workers int

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract every object matched by the configured targets",
		Long: `Extract every object matched by the configured targets.

Input containers are found with the src glob, each object is matched against
the [[targets]] in order, and every match is written below dest.

With --dry nothing is written and the incremental state is left untouched,
but the report lists exactly what a real run would do.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newCLILogger(cfg, "cli-extract")
			if err != nil {
				return err
			}

			opts, err := extract.NewOptions(cfg)
			if err != nil {
				return err
			}
			opts.DryRun = dryRun
			opts.Logger = logger
			if cmd.Flags().Changed("incremental") {
				opts.Incremental = incrementalFlag
			}
			if cmd.Flags().Changed("workers") {
				opts.Workers = workers
			}

			if opts.Incremental {
				store, err := openStore(cmd, cfg, logger, dryRun)
				if err != nil {
					return err
				}
				opts.Store = store
			}

			report, runErr := extract.Run(cmd.Context(), opts)
			if opts.Store != nil {
				if err := opts.Store.Close(); err != nil {
					logging.ErrorWithContext(logger, "failed to save incremental state", "state_save_failed",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "check permissions on the incremental state path"),
					)
					runErr = errors.Join(runErr, fmt.Errorf("save incremental state: %w", err))
				}
			}
			if report != nil {
				if ctx.JSONMode() {
					if err := writeJSON(cmd, report); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					printReport(out, report, cfg.Dest, shouldColorize(out))
				}
			}
			if runErr != nil {
				return runErr
			}
			return reportError(report)
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry", "d", false, "Report what would be extracted without writing anything")
	cmd.Flags().BoolVar(&incrementalFlag, "incremental", false, "Skip unchanged outputs (overrides incremental.enabled)")
	cmd.Flags().IntVarP(&workers, "workers", "j", 0, "Containers processed in parallel (overrides workers)")
	return cmd
}

// reportError turns an unsuccessful report into the command's error so the
// exit status is non-zero.
func reportError(report *extract.Report) error {
	if report == nil {
		return nil
	}
	switch {
	case report.Aborted:
		return fmt.Errorf("extraction stopped early after %d corrupt containers", report.Counts.CorruptFiles)
	case report.HasFailures():
		return fmt.Errorf("extraction finished with %d failed jobs and %d corrupt containers",
			report.Counts.Failed, report.Counts.CorruptFiles)
	default:
		return nil
	}
}

func printReport(out io.Writer, report *extract.Report, destRoot string, colorize bool) {
	if report.Empty {
		fmt.Fprintln(out, "No input files matched src; nothing to do")
		return
	}

	for _, job := range report.Jobs {
		fmt.Fprintln(out, formatJobLine(job, colorize))
	}

	if len(report.Failures) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, paint("Failures:", ansiRed, colorize))
		for _, failure := range report.Failures {
			fmt.Fprintf(out, "  - %s\n", formatFailure(failure))
		}
	}

	if len(report.Collisions) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, paint("Destination collisions (last write wins):", ansiYellow, colorize))
		for _, c := range report.Collisions {
			fmt.Fprintf(out, "  - %s: %s (%s) then %s (%s)\n",
				c.Dest,
				c.Previous.Identifier, filepath.Base(c.Previous.Input),
				c.Next.Identifier, filepath.Base(c.Next.Input))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, formatSummary(report, destRoot, colorize))
}

func formatJobLine(job extract.Job, colorize bool) string {
	label, color := string(job.Outcome), ""
	switch job.Outcome {
	case extract.OutcomeExtracted:
		color = ansiGreen
	case extract.OutcomeSkipped:
		color = ansiDim
	case extract.OutcomeFailed:
		color = ansiRed
	}
	dest := job.Dest
	if dest == "" {
		dest = "-"
	}
	return fmt.Sprintf("%s %s <- %s", paint(fmt.Sprintf("%-9s", label), color, colorize), dest, job.Identifier)
}

func formatFailure(f extract.Failure) string {
	var b strings.Builder
	b.WriteString(filepath.Base(f.Input))
	if f.Identifier != "" {
		b.WriteString(" ")
		b.WriteString(f.Identifier)
	}
	if f.Dest != "" {
		b.WriteString(" -> ")
		b.WriteString(f.Dest)
	} else if f.Template != "" {
		b.WriteString(" (dest template ")
		b.WriteString(f.Template)
		b.WriteString(")")
	}
	fmt.Fprintf(&b, " [%s] %s", f.Kind, f.Message)
	return b.String()
}

func formatSummary(report *extract.Report, destRoot string, colorize bool) string {
	c := report.Counts
	prefix := ""
	if report.DryRun {
		prefix = paint("[dry run] ", ansiBlue, colorize)
	}
	line := fmt.Sprintf("%sExtracted %d, skipped %d, failed %d into %s (%d objects in %d files, %d matched, %d unsupported)",
		prefix, c.Extracted, c.Skipped, c.Failed, destRoot, c.Discovered, c.Inputs, c.Matched, c.Unsupported)
	if c.CorruptFiles > 0 {
		line += paint(fmt.Sprintf("; %d corrupt containers", c.CorruptFiles), ansiRed, colorize)
	}
	if report.Aborted {
		line += paint("; stopped early", ansiYellow, colorize)
	}
	return line
}
