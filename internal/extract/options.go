package extract

import (
	"errors"
	"log/slog"
	"runtime"
	"strings"

	"github.com/SegaraRai/uabxautomate/internal/config"
	"github.com/SegaraRai/uabxautomate/internal/incremental"
	"github.com/SegaraRai/uabxautomate/internal/rules"
)

// Options configures Run.
type Options struct {
	// Src is the input glob; Exclude removes matches from it.
	Src     string
	Exclude []string
	// Dest is the destination root every rendered path is joined onto.
	Dest  string
	Rules []rules.Rule

	// Store backs the incremental gate. It is required when Incremental is
	// set and is never written during a dry run.
	Store       incremental.Store
	Incremental bool
	DryRun      bool

	// Workers bounds the number of files processed in parallel. Zero means
	// one per CPU.
	Workers int
	// MaxCorruptFiles stops scheduling new files once this many containers
	// failed to parse. Zero disables the limit.
	MaxCorruptFiles int

	Logger *slog.Logger
}

// NewOptions builds Options from a loaded configuration. Store, DryRun and
// Logger are left for the caller.
func NewOptions(cfg *config.Config) (Options, error) {
	if cfg == nil {
		return Options{}, errors.New("config is nil")
	}
	compiled, err := cfg.Rules()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Src:             cfg.Src,
		Exclude:         append([]string(nil), cfg.Exclude...),
		Dest:            cfg.Dest,
		Rules:           compiled,
		Incremental:     cfg.Incremental.Enabled,
		Workers:         cfg.WorkerCount(),
		MaxCorruptFiles: cfg.MaxCorruptFiles,
	}, nil
}

func (o Options) validate() error {
	if strings.TrimSpace(o.Src) == "" {
		return errors.New("source pattern is empty")
	}
	if strings.TrimSpace(o.Dest) == "" {
		return errors.New("destination root is empty")
	}
	if o.Incremental && o.Store == nil {
		return errors.New("incremental mode requires a state store")
	}
	if o.MaxCorruptFiles < 0 {
		return errors.New("max corrupt files must be >= 0")
	}
	return nil
}

func (o Options) workerCount(inputs int) int {
	workers := o.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > inputs {
		workers = inputs
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
