package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/SegaraRai/uabxautomate/internal/discovery"
	"github.com/SegaraRai/uabxautomate/internal/incremental"
	"github.com/SegaraRai/uabxautomate/internal/logging"
	"github.com/SegaraRai/uabxautomate/internal/rules"
)

// Run executes one extraction run. The returned report is complete even when
// Run also returns the context's error after a cancellation. A source pattern
// that matches nothing yields a report with Empty set and no error.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(opts.Logger, "extract"))
	report := &Report{RunID: runID, DryRun: opts.DryRun}

	inputs, err := discovery.Find(opts.Src, opts.Exclude)
	if errors.Is(err, discovery.ErrNoInputs) {
		report.Empty = true
		logging.WarnWithContext(logger, "no input files matched", "empty_run",
			logging.String("src", opts.Src),
			logging.String(logging.FieldErrorHint, "check src and exclude in the config"),
			logging.String(logging.FieldImpact, "nothing was extracted"),
		)
		report.finalize()
		return report, nil
	}
	if err != nil {
		return nil, err
	}
	report.Counts.Inputs = len(inputs)

	r := &runner{
		dest:   opts.Dest,
		rules:  opts.Rules,
		gate:   incremental.NewGate(opts.Store, opts.Incremental, opts.DryRun),
		dryRun: opts.DryRun,
		limit:  opts.MaxCorruptFiles,
		logger: logger,
	}
	logger.Info("extraction started",
		logging.Int("inputs", len(inputs)),
		logging.Int("rules", len(opts.Rules)),
		logging.Int("workers", opts.workerCount(len(inputs))),
		logging.Bool("dry_run", opts.DryRun),
		logging.Bool("incremental", r.gate.Enabled()),
	)

	r.run(ctx, inputs, opts.workerCount(len(inputs)), report)
	report.finalize()
	logCollisions(logger, report.Collisions)

	logger.Info("extraction finished",
		logging.Int("inputs", report.Counts.Inputs),
		logging.Int("discovered", report.Counts.Discovered),
		logging.Int("matched", report.Counts.Matched),
		logging.Int("extracted", report.Counts.Extracted),
		logging.Int("skipped", report.Counts.Skipped),
		logging.Int("unsupported", report.Counts.Unsupported),
		logging.Int("failed", report.Counts.Failed),
		logging.Int("corrupt_files", report.Counts.CorruptFiles),
		logging.Bool("aborted", report.Aborted),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

type runner struct {
	dest   string
	rules  []rules.Rule
	gate   *incremental.Gate
	dryRun bool
	limit  int
	logger *slog.Logger

	corrupt atomic.Int64
	aborted atomic.Bool
}

// run feeds inputs to a fixed pool of workers in order and collects their
// results into report. Scheduling stops on cancellation or once the corrupt
// file limit is reached; files already handed to a worker are finished.
func (r *runner) run(ctx context.Context, inputs []string, workers int, report *Report) {
	queue := make(chan string)
	results := make(chan fileOutput)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for input := range queue {
				out := r.processFile(ctx, input)
				if out.result.State == FileFailed {
					r.corrupt.Add(1)
				}
				results <- out
			}
		}()
	}

	go func() {
		defer close(queue)
		for i, input := range inputs {
			if stop := r.stopReason(ctx); stop != "" {
				r.abort(stop, len(inputs)-i)
				return
			}
			select {
			case queue <- input:
			case <-ctx.Done():
				r.abort("canceled", len(inputs)-i)
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for out := range results {
		report.add(out)
	}
	report.Aborted = r.aborted.Load()
}

func (r *runner) stopReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return "canceled"
	}
	if r.limit > 0 && r.corrupt.Load() >= int64(r.limit) {
		return "corrupt file limit reached"
	}
	return ""
}

func (r *runner) abort(reason string, remaining int) {
	r.aborted.Store(true)
	logging.WarnWithContext(r.logger, "stopped scheduling input files", "run_aborted",
		logging.String("reason", reason),
		logging.Int("remaining", remaining),
		logging.String(logging.FieldImpact, fmt.Sprintf("%d input files were not processed", remaining)),
		logging.String(logging.FieldErrorHint, "fix or exclude the corrupt inputs, or raise max_corrupt_files"),
	)
}

func logCollisions(logger *slog.Logger, collisions []Collision) {
	for _, c := range collisions {
		logging.WarnWithContext(logger, "destination written by more than one job", "dest_collision",
			logging.String(logging.FieldDest, c.Dest),
			logging.String("previous_input", c.Previous.Input),
			logging.String("previous_identifier", c.Previous.Identifier),
			logging.String("next_input", c.Next.Input),
			logging.String("next_identifier", c.Next.Identifier),
			logging.String(logging.FieldImpact, "the last write wins"),
			logging.String(logging.FieldErrorHint, "make the dest templates of overlapping targets distinct"),
		)
	}
}
