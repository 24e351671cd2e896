package testsupport

import (
	"context"
	"testing"

	"github.com/SegaraRai/uabxautomate/internal/config"
	"github.com/SegaraRai/uabxautomate/internal/incremental"
)

// MustOpenStore opens the incremental store described by cfg and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, readOnly bool) incremental.Store {
	t.Helper()

	store, err := incremental.Open(context.Background(), incremental.Options{
		Backend:  cfg.Incremental.Backend,
		Path:     cfg.Incremental.Path,
		ReadOnly: readOnly,
	})
	if err != nil {
		t.Fatalf("incremental.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
