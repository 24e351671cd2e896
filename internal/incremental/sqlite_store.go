package incremental

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/SegaraRai/uabxautomate/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older databases must be
// cleared with "uabxautomate state clear" or deleted.
const schemaVersion = 2

// ErrSchemaMismatch indicates the database was written by an incompatible
// version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore persists records in a SQLite database, writing each change
// immediately. A nil db means a read-only store whose file does not exist yet.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	readOnly bool
	logger   *slog.Logger
	lock     *flock.Flock
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string, readOnly bool, logger *slog.Logger) (*SQLiteStore, error) {
	ctx = ensureContext(ctx)
	s := &SQLiteStore{
		path:     path,
		readOnly: readOnly,
		logger:   logging.NewComponentLogger(logger, "incremental"),
	}

	if readOnly {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		db, err := sql.Open("sqlite", readOnlyDSN(path))
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
		s.db = db
		if err := s.checkSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	s.lock = flock.New(path + ".lock")
	ok, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire state lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		s.unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			s.unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	s.db = db
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		s.unlock()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	exists, err := s.hasSchemaTable(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return s.createSchema(ctx)
	}
	return s.checkSchema(ctx)
}

func (s *SQLiteStore) hasSchemaTable(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check schema_version table: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) checkSchema(ctx context.Context) error {
	exists, err := s.hasSchemaTable(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s has no schema_version table", ErrSchemaMismatch, s.path)
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'uabxautomate state clear' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Lookup returns the record for dest.
func (s *SQLiteStore) Lookup(ctx context.Context, dest string) (Record, bool, error) {
	if s.db == nil {
		return Record{}, false, nil
	}
	ctx = ensureContext(ctx)
	var (
		rec       Record
		shadowed  string
		updatedAt string
	)
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT dest_path, fingerprint, shadowed, source, updated_at FROM records WHERE dest_path = ?", dest,
		).Scan(&rec.DestPath, &rec.Fingerprint, &shadowed, &rec.Source, &updatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lookup %s: %w", dest, err)
	}
	rec.Shadowed = splitShadowed(shadowed)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, true, nil
}

// Put inserts or replaces the record for rec.DestPath.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.DestPath) == "" {
		return errors.New("destination path cannot be empty")
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return s.exec(ctx,
		`INSERT INTO records (dest_path, fingerprint, shadowed, source, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(dest_path) DO UPDATE SET fingerprint = excluded.fingerprint,
		   shadowed = excluded.shadowed, source = excluded.source, updated_at = excluded.updated_at`,
		rec.DestPath, rec.Fingerprint, strings.Join(rec.Shadowed, " "), rec.Source,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
}

// Delete removes the record for dest.
func (s *SQLiteStore) Delete(ctx context.Context, dest string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, "DELETE FROM records WHERE dest_path = ?", dest)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", dest, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, dest)
	}
	return nil
}

// List returns all records sorted by destination path.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	if s.db == nil {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT dest_path, fingerprint, shadowed, source, updated_at FROM records ORDER BY dest_path")
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			shadowed  string
			updatedAt string
		)
		if err := rows.Scan(&rec.DestPath, &rec.Fingerprint, &shadowed, &rec.Source, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Shadowed = splitShadowed(shadowed)
		rec.UpdatedAt = parseTime(updatedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear removes every record.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if s.readOnly {
		return ErrReadOnly
	}
	return s.exec(ctx, "DELETE FROM records")
}

// Close closes the database and releases the lock.
func (s *SQLiteStore) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	s.unlock()
	return err
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (s *SQLiteStore) unlock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release state lock", logging.Error(err))
	}
	s.lock = nil
}

// readOnlyDSN returns a DSN that reads path without writing. immutable keeps
// SQLite from creating -wal/-shm files but also ignores an existing -wal, so
// uncheckpointed records of a live or crashed writer need plain mode=ro.
func readOnlyDSN(path string) string {
	dsn := "file:" + filepath.ToSlash(path) + "?mode=ro"
	if _, err := os.Stat(path + "-wal"); err == nil {
		return dsn
	}
	return dsn + "&immutable=1"
}

// splitShadowed decodes the space separated shadowed column. Fingerprints are
// hex, so they never contain spaces.
func splitShadowed(value string) []string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
