package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/SegaraRai/uabxautomate/internal/bundle"
	"github.com/SegaraRai/uabxautomate/internal/decoder"
	"github.com/SegaraRai/uabxautomate/internal/fileutil"
	"github.com/SegaraRai/uabxautomate/internal/incremental"
	"github.com/SegaraRai/uabxautomate/internal/logging"
	"github.com/SegaraRai/uabxautomate/internal/rules"
)

const outputFileMode = 0o644

// object holds per-object state shared by every job the object fans out to.
// Decoding happens at most once and only when some job needs it.
type object struct {
	input   string
	entry   bundle.ObjectEntry
	payload []byte

	fingerprint string

	decoded   bool
	artifact  decoder.Artifact
	decodeErr error
}

func (o *object) fingerprintValue() string {
	if o.fingerprint == "" {
		o.fingerprint = incremental.Fingerprint(incremental.Source{
			BundlePath: o.input,
			Entry:      o.entry,
			Payload:    o.payload,
		})
	}
	return o.fingerprint
}

func (o *object) decode() (decoder.Artifact, error) {
	if !o.decoded {
		o.artifact, o.decodeErr = decoder.Decode(o.entry.Type, o.payload)
		o.decoded = true
	}
	return o.artifact, o.decodeErr
}

// processFile walks one input through Opened, Indexed and Matching, then
// runs every job sequentially.
func (r *runner) processFile(ctx context.Context, input string) fileOutput {
	logger := r.logger.With(logging.String(logging.FieldInput, input))
	out := fileOutput{result: FileResult{Input: input, State: FileDone}}

	data, err := os.ReadFile(input)
	if err != nil {
		return r.failFile(logger, out, fmt.Errorf("%w: read input: %w", ErrIO, err))
	}
	b, err := bundle.Open(data)
	if err != nil {
		return r.failFile(logger, out, err)
	}

	out.result.Objects = b.Len()
	out.discovered = b.Len()
	for _, entry := range b.Objects {
		if !decoder.Supported(entry.Type) {
			out.unsupported++
			logger.Debug("object type has no decoder",
				logging.String(logging.FieldObject, entry.Identifier()),
				logging.String("type", entry.Type.String()),
			)
			continue
		}
		matches := rules.MatchObject(entry, input, r.rules)
		if len(matches) == 0 {
			continue
		}
		obj := &object{input: input, entry: entry, payload: b.Payload(entry)}
		for _, m := range matches {
			job, failure := r.runJob(ctx, logger, obj, m)
			out.jobs = append(out.jobs, job)
			if failure != nil {
				out.failures = append(out.failures, *failure)
			}
		}
	}
	out.result.Jobs = len(out.jobs)

	logger.Info("input processed",
		logging.Int("objects", out.discovered),
		logging.Int("jobs", len(out.jobs)),
		logging.Int("failed", len(out.failures)),
	)
	return out
}

func (r *runner) failFile(logger *slog.Logger, out fileOutput, err error) fileOutput {
	kind := KindOf(err)
	out.result.State = FileFailed
	out.result.Error = err.Error()
	out.failures = append(out.failures, Failure{
		Input:       out.result.Input,
		Kind:        kind,
		Message:     err.Error(),
		objectIndex: -1,
		rule:        -1,
	})
	logging.ErrorWithContext(logger, "input file failed", "input_failed",
		logging.String("error_kind", string(kind)),
		logging.String(logging.FieldErrorHint, hint(kind)),
		logging.Error(err),
	)
	return out
}

// runJob takes one match through templating, the incremental gate, decoding
// and the write.
func (r *runner) runJob(ctx context.Context, logger *slog.Logger, obj *object, m rules.Match) (Job, *Failure) {
	job := Job{
		Input:       obj.input,
		ObjectIndex: obj.entry.Index,
		Rule:        m.Rule.Index,
		Identifier:  m.Identifier,
		Type:        obj.entry.Type.String(),
	}
	logger = logger.With(
		logging.String(logging.FieldObject, m.Identifier),
		logging.Int("rule", m.Rule.Index),
	)

	rel, err := rules.Render(m)
	if err != nil {
		return r.failJob(logger, job, m.Rule.Dest, err)
	}
	job.Dest = rel
	dest, err := rules.Resolve(r.dest, rel)
	if err != nil {
		return r.failJob(logger, job, m.Rule.Dest, err)
	}
	logger = logger.With(logging.String(logging.FieldDest, rel))

	fingerprint := obj.fingerprintValue()
	skip, err := r.gate.ShouldSkip(ctx, dest, fingerprint)
	if err != nil {
		return r.failJob(logger, job, m.Rule.Dest, fmt.Errorf("%w: incremental lookup: %w", ErrIO, err))
	}
	if skip {
		job.Outcome = OutcomeSkipped
		logger.Debug("destination up to date")
		return job, nil
	}

	artifact, err := obj.decode()
	if err != nil {
		return r.failJob(logger, job, m.Rule.Dest, err)
	}
	var buf bytes.Buffer
	if err := artifact.Encode(&buf, dest); err != nil {
		return r.failJob(logger, job, m.Rule.Dest, fmt.Errorf("%w: encode %s: %w", decoder.ErrDecode, rel, err))
	}

	if !r.dryRun {
		if err := fileutil.WriteFileAtomic(dest, buf.Bytes(), outputFileMode); err != nil {
			return r.failJob(logger, job, m.Rule.Dest, fmt.Errorf("%w: write %s: %w", ErrIO, dest, err))
		}
	}
	if err := r.gate.Commit(ctx, dest, fingerprint, fmt.Sprintf("%s [%s]", m.Identifier, obj.input)); err != nil {
		logging.WarnWithContext(logger, "failed to record extracted output", "state_update_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the destination will be rewritten on the next run"),
			logging.String(logging.FieldErrorHint, "check the incremental state path"),
		)
	}

	job.Outcome = OutcomeExtracted
	logger.Debug("object extracted", logging.Int("bytes", buf.Len()), logging.Bool("dry_run", r.dryRun))
	return job, nil
}

func (r *runner) failJob(logger *slog.Logger, job Job, template string, err error) (Job, *Failure) {
	kind := KindOf(err)
	job.Outcome = OutcomeFailed
	logging.WarnWithContext(logger, "job failed", "job_failed",
		logging.String("error_kind", string(kind)),
		logging.String(logging.FieldErrorHint, hint(kind)),
		logging.String(logging.FieldImpact, "this destination was not written"),
		logging.Error(err),
	)
	return job, &Failure{
		Input:       job.Input,
		Identifier:  job.Identifier,
		Dest:        job.Dest,
		Template:    template,
		Kind:        kind,
		Message:     err.Error(),
		objectIndex: job.ObjectIndex,
		rule:        job.Rule,
	}
}
