package incremental

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

var (
	// ErrNotFound is returned when removing a destination without a record.
	ErrNotFound = errors.New("record not found")
	// ErrLocked is returned when another process holds the store's writer lock.
	ErrLocked = errors.New("incremental state is locked by another run")
	// ErrReadOnly is returned by writes against a store opened read-only.
	ErrReadOnly = errors.New("incremental state opened read-only")
)

// Record is the persisted state of one destination file. Fingerprint belongs
// to the job that wrote the file last. Shadowed lists the fingerprints of
// other jobs that targeted the same file in that run and were overwritten;
// they count as up to date while the record stands.
type Record struct {
	DestPath    string    `json:"dest_path"`
	Fingerprint string    `json:"fingerprint"`
	Shadowed    []string  `json:"shadowed,omitempty"`
	Source      string    `json:"source"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Covers reports whether fingerprint is the writer of the record or one of
// the jobs it superseded.
func (r Record) Covers(fingerprint string) bool {
	return fingerprint != "" && (r.Fingerprint == fingerprint || slices.Contains(r.Shadowed, fingerprint))
}

// Store persists records keyed by destination path. Implementations are safe
// for concurrent use.
type Store interface {
	Lookup(ctx context.Context, dest string) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, dest string) error
	List(ctx context.Context) ([]Record, error)
	Clear(ctx context.Context) error
	Close() error
}

// Options configures Open.
type Options struct {
	Backend  string
	Path     string
	ReadOnly bool
	Logger   *slog.Logger
}

// Open opens the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("incremental state path is empty")
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendJSON, "":
		return OpenJSON(opts.Path, opts.ReadOnly, opts.Logger)
	case BackendSQLite:
		return OpenSQLite(ctx, opts.Path, opts.ReadOnly, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown incremental backend %q", opts.Backend)
	}
}
