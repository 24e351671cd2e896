package extract_test

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/SegaraRai/uabxautomate/internal/bundle"
	"github.com/SegaraRai/uabxautomate/internal/bundle/bundletest"
	"github.com/SegaraRai/uabxautomate/internal/config"
	"github.com/SegaraRai/uabxautomate/internal/extract"
	"github.com/SegaraRai/uabxautomate/internal/testsupport"
)

const (
	spineMatch = `^.+/spines/([^/]+)/[^#]+#(.+)$`
	dataMatch  = `^Assets/data/([^#]+)#(.+)$`
)

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

// charsBundle holds one texture, one text asset and one unsupported object.
func charsBundle() *bundletest.Builder {
	return bundletest.New().
		Add(bundletest.Object{
			Type:      bundle.TypeTexture2D,
			PathID:    100,
			Container: "Assets/spines/hero/anim",
			Name:      "walk01",
			Payload:   bundletest.RGBA32Texture([][]color.NRGBA{{red, blue}, {blue, red}}),
		}).
		Add(bundletest.Object{
			Type:      bundle.TypeTextAsset,
			PathID:    101,
			Container: "Assets/data/stats",
			Name:      "hero",
			Payload:   bundletest.TextPayload(`{"hp": 10}`),
		}).
		Add(bundletest.Object{
			Type:      bundle.TypeGameObject,
			PathID:    102,
			Container: "Assets/spines/hero/anim",
			Name:      "root",
			Payload:   []byte{0, 1, 2},
		})
}

func defaultTargets() []testsupport.ConfigOption {
	return []testsupport.ConfigOption{
		testsupport.WithTarget("texture2d", spineMatch, "$1/$2.png"),
		testsupport.WithTarget("text", dataMatch, "data/$1/$2.json"),
	}
}

// runOnce opens the configured store the way the CLI does, runs, and closes
// the store so JSON state is flushed.
func runOnce(t *testing.T, cfg *config.Config, dryRun bool) *extract.Report {
	t.Helper()
	opts, err := extract.NewOptions(cfg)
	if err != nil {
		t.Fatalf("NewOptions: %v", err)
	}
	opts.DryRun = dryRun
	if cfg.Incremental.Enabled {
		store := testsupport.MustOpenStore(t, cfg, dryRun)
		defer store.Close()
		opts.Store = store
	}
	report, err := extract.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return report
}

func assertCounts(t *testing.T, got, want extract.Counts) {
	t.Helper()
	if got != want {
		t.Fatalf("counts = %+v, want %+v", got, want)
	}
}

func TestRunExtractsMatchedObjects(t *testing.T) {
	cfg := testsupport.NewConfig(t, defaultTargets()...)
	testsupport.WriteBundle(t, filepath.Join(testsupport.InputDir(cfg), "chars.bundle"), charsBundle())

	report := runOnce(t, cfg, false)
	assertCounts(t, report.Counts, extract.Counts{
		Inputs: 1, Discovered: 3, Matched: 2, Extracted: 2, Unsupported: 1,
	})
	if report.RunID == "" {
		t.Fatal("expected a run id")
	}
	if report.HasFailures() {
		t.Fatalf("unexpected failures: %+v", report.Failures)
	}

	file, err := os.Open(filepath.Join(cfg.Dest, "hero", "walk01.png"))
	if err != nil {
		t.Fatalf("open extracted texture: %v", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("decode extracted texture: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}

	text, err := os.ReadFile(filepath.Join(cfg.Dest, "data", "stats", "hero.json"))
	if err != nil {
		t.Fatalf("read extracted text: %v", err)
	}
	if string(text) != `{"hp": 10}` {
		t.Fatalf("text = %q", text)
	}

	wantJobs := []string{"hero/walk01.png", "data/stats/hero.json"}
	for i, job := range report.Jobs {
		if job.Dest != wantJobs[i] || job.Outcome != extract.OutcomeExtracted {
			t.Fatalf("job %d = %+v", i, job)
		}
	}
}

func TestRunIncrementalIsIdempotent(t *testing.T) {
	for _, backend := range []string{config.BackendJSON, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, append(defaultTargets(), testsupport.WithIncremental(backend))...)
			testsupport.WriteBundle(t, filepath.Join(testsupport.InputDir(cfg), "chars.bundle"), charsBundle())

			first := runOnce(t, cfg, false)
			if first.Counts.Extracted != 2 {
				t.Fatalf("first run extracted %d, want 2", first.Counts.Extracted)
			}

			texture := filepath.Join(cfg.Dest, "hero", "walk01.png")
			past := time.Now().Add(-time.Hour)
			if err := os.Chtimes(texture, past, past); err != nil {
				t.Fatal(err)
			}

			second := runOnce(t, cfg, false)
			if second.Counts.Extracted != 0 {
				t.Fatalf("second run extracted %d, want 0", second.Counts.Extracted)
			}
			if second.Counts.Skipped != first.Counts.Extracted {
				t.Fatalf("second run skipped %d, want %d", second.Counts.Skipped, first.Counts.Extracted)
			}
			info, err := os.Stat(texture)
			if err != nil {
				t.Fatal(err)
			}
			if !info.ModTime().Equal(past) {
				t.Fatal("skipped destination was rewritten")
			}

			// A deleted output is restored even though its record matches.
			if err := os.Remove(texture); err != nil {
				t.Fatal(err)
			}
			third := runOnce(t, cfg, false)
			if third.Counts.Extracted != 1 || third.Counts.Skipped != 1 {
				t.Fatalf("third run counts = %+v", third.Counts)
			}
		})
	}
}

func TestRunIncrementalDetectsChangedPayload(t *testing.T) {
	cfg := testsupport.NewConfig(t, append(defaultTargets(), testsupport.WithIncremental(config.BackendJSON))...)
	input := filepath.Join(testsupport.InputDir(cfg), "chars.bundle")
	testsupport.WriteBundle(t, input, charsBundle())
	runOnce(t, cfg, false)

	changed := bundletest.New().
		Add(bundletest.Object{
			Type:      bundle.TypeTextAsset,
			PathID:    101,
			Container: "Assets/data/stats",
			Name:      "hero",
			Payload:   bundletest.TextPayload(`{"hp": 99}`),
		})
	testsupport.WriteBundle(t, input, changed)

	report := runOnce(t, cfg, false)
	if report.Counts.Extracted != 1 || report.Counts.Skipped != 0 {
		t.Fatalf("counts = %+v", report.Counts)
	}
	text, err := os.ReadFile(filepath.Join(cfg.Dest, "data", "stats", "hero.json"))
	if err != nil || string(text) != `{"hp": 99}` {
		t.Fatalf("text = %q, %v", text, err)
	}
}

func TestDryRunMatchesRealRunWithoutSideEffects(t *testing.T) {
	cfg := testsupport.NewConfig(t, append(defaultTargets(), testsupport.WithIncremental(config.BackendJSON))...)
	testsupport.WriteBundle(t, filepath.Join(testsupport.InputDir(cfg), "chars.bundle"), charsBundle())
	testsupport.WriteFile(t, filepath.Join(testsupport.InputDir(cfg), "broken.bundle"), []byte("not a bundle"))

	base := testsupport.BaseDir(cfg)
	before := testsupport.Snapshot(t, base)
	dry := runOnce(t, cfg, true)
	after := testsupport.Snapshot(t, base)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("dry run changed the filesystem:\nbefore %v\nafter  %v", before, after)
	}
	if !dry.DryRun {
		t.Fatal("report must be flagged as a dry run")
	}

	wet := runOnce(t, cfg, false)
	if dry.Counts != wet.Counts {
		t.Fatalf("counts differ: dry %+v real %+v", dry.Counts, wet.Counts)
	}
	if !reflect.DeepEqual(dry.Files, wet.Files) {
		t.Fatalf("files differ:\ndry  %+v\nreal %+v", dry.Files, wet.Files)
	}
	if !reflect.DeepEqual(dry.Jobs, wet.Jobs) {
		t.Fatalf("jobs differ:\ndry  %+v\nreal %+v", dry.Jobs, wet.Jobs)
	}
	if !reflect.DeepEqual(dry.Failures, wet.Failures) {
		t.Fatalf("failures differ:\ndry  %+v\nreal %+v", dry.Failures, wet.Failures)
	}
	if _, err := os.Stat(filepath.Join(cfg.Dest, "hero", "walk01.png")); err != nil {
		t.Fatalf("real run must write outputs: %v", err)
	}
}

func TestCorruptContainerIsIsolated(t *testing.T) {
	cfg := testsupport.NewConfig(t, defaultTargets()...)
	testsupport.WriteBundle(t, filepath.Join(testsupport.InputDir(cfg), "b_chars.bundle"), charsBundle())
	testsupport.WriteFile(t, filepath.Join(testsupport.InputDir(cfg), "a_broken.bundle"), []byte("not a bundle"))

	report := runOnce(t, cfg, false)
	assertCounts(t, report.Counts, extract.Counts{
		Inputs: 2, Discovered: 3, Matched: 2, Extracted: 2, Unsupported: 1, CorruptFiles: 1,
	})
	if len(report.Files) != 2 {
		t.Fatalf("expected 2 file results, got %d", len(report.Files))
	}
	if report.Files[0].State != extract.FileFailed || report.Files[1].State != extract.FileDone {
		t.Fatalf("unexpected file states %+v", report.Files)
	}
	if len(report.Failures) != 1 || report.Failures[0].Kind != extract.KindCorruptContainer {
		t.Fatalf("unexpected failures %+v", report.Failures)
	}
	if !report.HasFailures() {
		t.Fatal("corrupt containers must count as failures")
	}
}

func TestMaxCorruptFilesStopsScheduling(t *testing.T) {
	cfg := testsupport.NewConfig(t, append(defaultTargets(),
		testsupport.WithWorkers(1),
		testsupport.WithMaxCorruptFiles(1),
	)...)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		testsupport.WriteFile(t, filepath.Join(testsupport.InputDir(cfg), name+".bundle"), []byte("garbage"))
	}

	report := runOnce(t, cfg, false)
	if !report.Aborted {
		t.Fatal("expected the run to stop early")
	}
	if report.Counts.Inputs != 5 {
		t.Fatalf("inputs = %d, want 5", report.Counts.Inputs)
	}
	if len(report.Files) >= 5 {
		t.Fatalf("expected unscheduled files, processed %d", len(report.Files))
	}
}

func TestUnsupportedObjectsNeverProduceJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTemplateTarget("texture2d", "{name}", "(.*)", "$1.png"))
	testsupport.WriteBundle(t, filepath.Join(testsupport.InputDir(cfg), "chars.bundle"), charsBundle())

	report := runOnce(t, cfg, false)
	if report.Counts.Unsupported != 1 {
		t.Fatalf("unsupported = %d, want 1", report.Counts.Unsupported)
	}
	for _, job := range report.Jobs {
		if job.Identifier == "root" {
			t.Fatalf("unsupported object produced a job: %+v", job)
		}
	}
	if len(report.Jobs) != 1 {
		t.Fatalf("expected only the texture job, got %+v", report.Jobs)
	}
}

func TestFanOutProducesIndependentJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTarget("texture2d", spineMatch, "$1/$2.png"),
		testsupport.WithTarget("texture2d", spineMatch, "thumbs/$2.jpg"),
	)
	testsupport.WriteBundle(t, filepath.Join(testsupport.InputDir(cfg), "chars.bundle"), charsBundle())

	report := runOnce(t, cfg, false)
	if report.Counts.Matched != 2 || report.Counts.Extracted != 2 {
		t.Fatalf("counts = %+v", report.Counts)
	}
	if report.Jobs[0].Rule != 0 || report.Jobs[1].Rule != 1 {
		t.Fatalf("jobs must follow rule order: %+v", report.Jobs)
	}
	for _, rel := range []string{"hero/walk01.png", "thumbs/walk01.jpg"} {
		if _, err := os.Stat(filepath.Join(cfg.Dest, filepath.FromSlash(rel))); err != nil {
			t.Fatalf("missing %s: %v", rel, err)
		}
	}
	if len(report.Collisions) != 0 {
		t.Fatalf("unexpected collisions %+v", report.Collisions)
	}
}

func TestPathEscapeFailsOnlyThatJob(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTarget("texture2d", `^([^#]+)#(.+)$`, "$1/$2.png"),
		testsupport.WithTarget("text", dataMatch, "data/$1/$2.json"),
	)
	evil := charsBundle().Add(bundletest.Object{
		Type:      bundle.TypeTexture2D,
		PathID:    200,
		Container: "../../evil",
		Name:      "x",
		Payload:   bundletest.RGBA32Texture([][]color.NRGBA{{red}}),
	})
	testsupport.WriteBundle(t, filepath.Join(testsupport.InputDir(cfg), "chars.bundle"), evil)

	report := runOnce(t, cfg, false)
	if report.Counts.Failed != 1 || report.Counts.Extracted != 2 {
		t.Fatalf("counts = %+v", report.Counts)
	}
	failure := report.Failures[0]
	if failure.Kind != extract.KindPathEscape || failure.Identifier != "../../evil#x" || failure.Template != "$1/$2.png" {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if _, err := os.Stat(filepath.Join(testsupport.BaseDir(cfg), "evil")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("nothing may be written outside the destination root: %v", err)
	}
}

func TestTemplateAndDecodeErrorsAreReported(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTarget("texture2d", `^(?:(x)|[^#]*)#(.+)$`, "$1/$2.png"),
		testsupport.WithTarget("text", dataMatch, "data/$1/$2.json"),
	)
	b := bundletest.New().
		Add(bundletest.Object{
			Type:      bundle.TypeTexture2D,
			Container: "Assets/a",
			Name:      "optional",
			Payload:   bundletest.RGBA32Texture([][]color.NRGBA{{red}}),
		}).
		Add(bundletest.Object{
			Type:      bundle.TypeTextAsset,
			Container: "Assets/data/bad",
			Name:      "short",
			Payload:   []byte{0, 0, 0, 9, 'x'},
		}).
		Add(bundletest.Object{
			Type:      bundle.TypeTextAsset,
			Container: "Assets/data/good",
			Name:      "ok",
			Payload:   bundletest.TextPayload("ok"),
		})
	testsupport.WriteBundle(t, filepath.Join(testsupport.InputDir(cfg), "mixed.bundle"), b)

	report := runOnce(t, cfg, false)
	if report.Counts.Failed != 2 || report.Counts.Extracted != 1 {
		t.Fatalf("counts = %+v", report.Counts)
	}
	if report.Failures[0].Kind != extract.KindTemplateError {
		t.Fatalf("first failure = %+v", report.Failures[0])
	}
	if report.Failures[1].Kind != extract.KindDecodeError || report.Failures[1].Dest != "data/bad/short.json" {
		t.Fatalf("second failure = %+v", report.Failures[1])
	}
	if _, err := os.Stat(filepath.Join(cfg.Dest, "data", "good", "ok.json")); err != nil {
		t.Fatalf("sibling job must still be written: %v", err)
	}
}

func TestCollisionsAreLastWriterWins(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTarget("text", dataMatch, "same.txt"),
		testsupport.WithTarget("text", `^Assets/data/.*$`, "same.txt"),
	)
	testsupport.WriteBundle(t, filepath.Join(testsupport.InputDir(cfg), "chars.bundle"), charsBundle())

	report := runOnce(t, cfg, false)
	if len(report.Collisions) != 1 {
		t.Fatalf("expected one collision, got %+v", report.Collisions)
	}
	c := report.Collisions[0]
	if c.Dest != "same.txt" || c.Previous.Rule != 0 || c.Next.Rule != 1 {
		t.Fatalf("unexpected collision %+v", c)
	}
	if report.Counts.Extracted != 2 {
		t.Fatalf("both jobs must run: %+v", report.Counts)
	}
}

func TestIncrementalCollisionsSettleAfterFirstRun(t *testing.T) {
	for _, backend := range []string{config.BackendJSON, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := testsupport.NewConfig(t,
				testsupport.WithTarget("text", `^Assets/data/.*$`, "same.txt"),
				testsupport.WithIncremental(backend),
			)
			colliding := bundletest.New().
				Add(bundletest.Object{
					Type:      bundle.TypeTextAsset,
					PathID:    1,
					Container: "Assets/data/a",
					Name:      "entry",
					Payload:   bundletest.TextPayload("first"),
				}).
				Add(bundletest.Object{
					Type:      bundle.TypeTextAsset,
					PathID:    2,
					Container: "Assets/data/b",
					Name:      "entry",
					Payload:   bundletest.TextPayload("second"),
				})
			testsupport.WriteBundle(t, filepath.Join(testsupport.InputDir(cfg), "colliding.bundle"), colliding)

			first := runOnce(t, cfg, false)
			if len(first.Collisions) != 1 || first.Counts.Extracted != 2 {
				t.Fatalf("first run: collisions=%+v counts=%+v", first.Collisions, first.Counts)
			}
			written, err := os.ReadFile(filepath.Join(cfg.Dest, "same.txt"))
			if err != nil {
				t.Fatalf("read output: %v", err)
			}

			for run := 2; run <= 3; run++ {
				report := runOnce(t, cfg, false)
				if report.Counts.Extracted != 0 || report.Counts.Skipped != 2 {
					t.Fatalf("run %d: counts = %+v", run, report.Counts)
				}
			}
			again, err := os.ReadFile(filepath.Join(cfg.Dest, "same.txt"))
			if err != nil || !bytes.Equal(again, written) {
				t.Fatalf("output changed across skipped runs: %q -> %q (%v)", written, again, err)
			}
		})
	}
}

func TestEmptyRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, defaultTargets()...)

	report := runOnce(t, cfg, false)
	if !report.Empty {
		t.Fatal("expected an empty run")
	}
	if report.Counts.Inputs != 0 || len(report.Jobs) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestCanceledContextStopsScheduling(t *testing.T) {
	cfg := testsupport.NewConfig(t, defaultTargets()...)
	testsupport.WriteBundle(t, filepath.Join(testsupport.InputDir(cfg), "chars.bundle"), charsBundle())

	opts, err := extract.NewOptions(cfg)
	if err != nil {
		t.Fatalf("NewOptions: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := extract.Run(ctx, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report == nil || !report.Aborted || len(report.Files) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunValidatesOptions(t *testing.T) {
	tests := map[string]extract.Options{
		"missing src":          {Dest: "out"},
		"missing dest":         {Src: "*.bundle"},
		"incremental no store": {Src: "*.bundle", Dest: "out", Incremental: true},
		"negative limit":       {Src: "*.bundle", Dest: "out", MaxCorruptFiles: -1},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := extract.Run(context.Background(), opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
