package extract

import (
	"sort"
)

// Outcome is the result of one job.
type Outcome string

const (
	OutcomeExtracted Outcome = "extracted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// FileState is the terminal state of one input file.
type FileState string

const (
	FileDone   FileState = "done"
	FileFailed FileState = "failed"
)

// Counts aggregates a run.
type Counts struct {
	Inputs       int `json:"inputs"`
	Discovered   int `json:"discovered"`
	Matched      int `json:"matched"`
	Extracted    int `json:"extracted"`
	Skipped      int `json:"skipped"`
	Unsupported  int `json:"unsupported"`
	Failed       int `json:"failed"`
	CorruptFiles int `json:"corrupt_files"`
}

// FileResult is the outcome of one input file.
type FileResult struct {
	Input   string    `json:"input"`
	State   FileState `json:"state"`
	Objects int       `json:"objects"`
	Jobs    int       `json:"jobs"`
	Error   string    `json:"error,omitempty"`
}

// Job is one (object, rule) pairing. Dest is the rendered path relative to
// the destination root and is empty when rendering failed.
type Job struct {
	Input       string  `json:"input"`
	ObjectIndex int     `json:"object_index"`
	Rule        int     `json:"rule"`
	Identifier  string  `json:"identifier"`
	Type        string  `json:"type"`
	Dest        string  `json:"dest,omitempty"`
	Outcome     Outcome `json:"outcome"`
}

// Failure locates one failed job or input file. Identifier and Template are
// empty for file-level failures; Dest is empty when rendering failed.
type Failure struct {
	Input      string `json:"input"`
	Identifier string `json:"identifier,omitempty"`
	Dest       string `json:"dest,omitempty"`
	Template   string `json:"template,omitempty"`
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`

	objectIndex int
	rule        int
}

// JobRef names a job taking part in a collision.
type JobRef struct {
	Input      string `json:"input"`
	Identifier string `json:"identifier"`
	Rule       int    `json:"rule"`
}

// Collision reports two jobs of one run rendering the same destination. The
// later write wins.
type Collision struct {
	Dest     string `json:"dest"`
	Previous JobRef `json:"previous"`
	Next     JobRef `json:"next"`
}

// Report is the result of Run.
type Report struct {
	RunID  string `json:"run_id"`
	DryRun bool   `json:"dry_run"`
	// Empty is set when the source pattern matched no files.
	Empty bool `json:"empty"`
	// Aborted is set when scheduling stopped early, either because the
	// context was canceled or too many containers were corrupt.
	Aborted bool `json:"aborted"`

	Counts     Counts       `json:"counts"`
	Files      []FileResult `json:"files"`
	Jobs       []Job        `json:"jobs"`
	Failures   []Failure    `json:"failures"`
	Collisions []Collision  `json:"collisions"`
}

// HasFailures reports whether any job or file failed.
func (r *Report) HasFailures() bool {
	return r.Counts.Failed > 0 || r.Counts.CorruptFiles > 0
}

// fileOutput is what a worker hands back for one input.
type fileOutput struct {
	result      FileResult
	discovered  int
	unsupported int
	jobs        []Job
	failures    []Failure
}

func (r *Report) add(out fileOutput) {
	r.Files = append(r.Files, out.result)
	r.Jobs = append(r.Jobs, out.jobs...)
	r.Failures = append(r.Failures, out.failures...)
	r.Counts.Discovered += out.discovered
	r.Counts.Unsupported += out.unsupported
	r.Counts.Matched += len(out.jobs)
	if out.result.State == FileFailed {
		r.Counts.CorruptFiles++
	}
	for _, job := range out.jobs {
		switch job.Outcome {
		case OutcomeExtracted:
			r.Counts.Extracted++
		case OutcomeSkipped:
			r.Counts.Skipped++
		case OutcomeFailed:
			r.Counts.Failed++
		}
	}
}

// finalize sorts everything for deterministic output and derives collisions.
func (r *Report) finalize() {
	sort.Slice(r.Files, func(i, j int) bool { return r.Files[i].Input < r.Files[j].Input })
	sort.Slice(r.Jobs, func(i, j int) bool {
		a, b := r.Jobs[i], r.Jobs[j]
		if a.Input != b.Input {
			return a.Input < b.Input
		}
		if a.ObjectIndex != b.ObjectIndex {
			return a.ObjectIndex < b.ObjectIndex
		}
		return a.Rule < b.Rule
	})
	sort.Slice(r.Failures, func(i, j int) bool {
		a, b := r.Failures[i], r.Failures[j]
		if a.Input != b.Input {
			return a.Input < b.Input
		}
		if a.objectIndex != b.objectIndex {
			return a.objectIndex < b.objectIndex
		}
		return a.rule < b.rule
	})
	r.Collisions = findCollisions(r.Jobs)
}

// findCollisions pairs each job with the previous job, in report order, that
// produced the same destination. Failed jobs never claim a destination.
func findCollisions(jobs []Job) []Collision {
	owners := make(map[string]Job)
	var collisions []Collision
	for _, job := range jobs {
		if job.Dest == "" || job.Outcome == OutcomeFailed {
			continue
		}
		if prev, ok := owners[job.Dest]; ok {
			collisions = append(collisions, Collision{
				Dest:     job.Dest,
				Previous: JobRef{Input: prev.Input, Identifier: prev.Identifier, Rule: prev.Rule},
				Next:     JobRef{Input: job.Input, Identifier: job.Identifier, Rule: job.Rule},
			})
		}
		owners[job.Dest] = job
	}
	return collisions
}
