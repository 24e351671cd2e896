package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/SegaraRai/uabxautomate/internal/config"
	"github.com/SegaraRai/uabxautomate/internal/rules"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a unique temp directory per test:
// inputs under <base>/in, outputs under <base>/out and state under
// <base>/state. It has no targets unless options add them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Src = filepath.Join(base, "in", "**", "*.bundle")
	cfgVal.Dest = filepath.Join(base, "out")
	cfgVal.Workers = 2
	cfgVal.Incremental.Path = filepath.Join(base, "state", "state.json")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTarget appends a target using the default identifier template.
func WithTarget(typ, match, dest string) ConfigOption {
	return WithTemplateTarget(typ, rules.DefaultTemplate, match, dest)
}

// WithTemplateTarget appends a target with an explicit identifier template.
func WithTemplateTarget(typ, template, match, dest string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Targets = append(b.cfg.Targets, config.Target{
			Type:     typ,
			Template: template,
			Match:    match,
			Dest:     dest,
		})
	}
}

// WithIncremental enables the incremental gate on the given backend.
func WithIncremental(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Incremental.Enabled = true
		b.cfg.Incremental.Backend = backend
		if backend == config.BackendSQLite {
			b.cfg.Incremental.Path = filepath.Join(b.baseDir, "state", "state.db")
		}
	}
}

// WithWorkers overrides the worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workers = n
	}
}

// WithMaxCorruptFiles sets the corrupt container limit.
func WithMaxCorruptFiles(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.MaxCorruptFiles = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Dest)
}

// InputDir returns the directory matched by the generated src pattern.
func InputDir(cfg *config.Config) string {
	return filepath.Join(BaseDir(cfg), "in")
}
