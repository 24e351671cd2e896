package incremental

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"slices"
	"sync"
	"time"
)

// Gate decides whether a job's destination is already up to date. All store
// access goes through one mutex because jobs from different inputs can target
// the same destination.
//
// When several jobs of one run target the same destination, the last writer
// wins. The record written for it keeps the fingerprints of the jobs it
// superseded in Shadowed, so an unchanged rerun skips all of them instead of
// rewriting the file once per job.
type Gate struct {
	store   Store
	enabled bool
	dryRun  bool
	now     func() time.Time

	mu sync.Mutex
	// claims tracks every destination this run has skipped or written.
	claims map[string]*claim
}

// claim is a destination's state within the current run. rec is the record
// the destination would have if the run ended now; current holds the
// fingerprints this run has verified or written for it.
type claim struct {
	rec     Record
	current map[string]bool
}

// NewGate returns a gate over store. A nil store or enabled=false makes every
// job run. dryRun keeps the store untouched; the claims still make later jobs
// of the same run behave as in a real run.
func NewGate(store Store, enabled, dryRun bool) *Gate {
	return &Gate{
		store:   store,
		enabled: enabled && store != nil,
		dryRun:  dryRun,
		now:     time.Now,
		claims:  make(map[string]*claim),
	}
}

// Enabled reports whether skipping is active.
func (g *Gate) Enabled() bool {
	return g != nil && g.enabled
}

// ShouldSkip reports true when the record for dest covers fingerprint and the
// destination file still exists. Once this run has touched dest, the run's
// own view of it is authoritative.
func (g *Gate) ShouldSkip(ctx context.Context, dest, fingerprint string) (bool, error) {
	if !g.Enabled() {
		return false, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.claims[dest]; ok {
		if !c.rec.Covers(fingerprint) {
			return false, nil
		}
		c.current[fingerprint] = true
		return true, nil
	}

	rec, ok, err := g.store.Lookup(ctx, dest)
	if err != nil {
		return false, err
	}
	if !ok || !rec.Covers(fingerprint) {
		return false, nil
	}
	if _, err := os.Stat(dest); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	g.claims[dest] = &claim{rec: rec, current: map[string]bool{fingerprint: true}}
	return true, nil
}

// Commit records a successful write of dest by the job with fingerprint.
// Every other fingerprint this run already accounted for at dest becomes
// shadowed by it. It does nothing when the gate is disabled and leaves the
// store untouched in dry-run mode.
func (g *Gate) Commit(ctx context.Context, dest, fingerprint, source string) error {
	if !g.Enabled() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.claims[dest]
	if !ok {
		c = &claim{current: make(map[string]bool)}
		g.claims[dest] = c
	}
	var shadowed []string
	for fp := range c.current {
		if fp != fingerprint {
			shadowed = append(shadowed, fp)
		}
	}
	slices.Sort(shadowed)
	c.rec = Record{
		DestPath:    dest,
		Fingerprint: fingerprint,
		Shadowed:    shadowed,
		Source:      source,
		UpdatedAt:   g.now().UTC(),
	}
	c.current[fingerprint] = true

	if g.dryRun {
		return nil
	}
	return g.store.Put(ctx, c.rec)
}
