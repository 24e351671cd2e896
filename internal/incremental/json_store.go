package incremental

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/SegaraRai/uabxautomate/internal/fileutil"
	"github.com/SegaraRai/uabxautomate/internal/logging"
)

// JSONStore keeps records in memory and writes them to a JSON file on Close.
type JSONStore struct {
	path     string
	readOnly bool
	logger   *slog.Logger
	lock     *flock.Flock

	mu      sync.RWMutex
	records map[string]Record
	dirty   bool
}

// OpenJSON loads the store at path. Writable stores take an exclusive lock on
// "<path>.lock" until Close.
func OpenJSON(path string, readOnly bool, logger *slog.Logger) (*JSONStore, error) {
	logger = logging.NewComponentLogger(logger, "incremental")
	s := &JSONStore{
		path:     path,
		readOnly: readOnly,
		logger:   logger,
		records:  make(map[string]Record),
	}

	if !readOnly {
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
	}

	if err := s.load(); err != nil {
		s.unlock()
		return nil, err
	}
	return s, nil
}

// Lookup returns the record for dest.
func (s *JSONStore) Lookup(_ context.Context, dest string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[dest]
	return rec, ok, nil
}

// Put adds or replaces the record for rec.DestPath.
func (s *JSONStore) Put(_ context.Context, rec Record) error {
	if strings.TrimSpace(rec.DestPath) == "" {
		return errors.New("destination path cannot be empty")
	}
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.DestPath] = rec
	s.dirty = true
	return nil
}

// Delete removes the record for dest.
func (s *JSONStore) Delete(_ context.Context, dest string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[dest]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, dest)
	}
	delete(s.records, dest)
	s.dirty = true
	return nil
}

// List returns all records sorted by destination path.
func (s *JSONStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRecords(s.records), nil
}

// Clear removes every record.
func (s *JSONStore) Clear(_ context.Context) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)
	s.dirty = true
	return nil
}

// Close flushes pending changes and releases the lock.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	err := s.flushLocked()
	s.mu.Unlock()
	s.unlock()
	return err
}

func (s *JSONStore) flushLocked() error {
	if !s.dirty || s.readOnly {
		return nil
	}
	data, err := json.MarshalIndent(sortedRecords(s.records), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	s.dirty = false
	s.logger.Debug("saved incremental state",
		logging.Int("record_count", len(s.records)),
		logging.String("path", s.path))
	return nil
}

func (s *JSONStore) unlock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release state lock", logging.Error(err))
	}
	s.lock = nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read state file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	for _, rec := range records {
		if strings.TrimSpace(rec.DestPath) != "" {
			s.records[rec.DestPath] = rec
		}
	}

	s.logger.Debug("loaded incremental state",
		logging.Int("record_count", len(s.records)),
		logging.String("path", s.path))
	return nil
}

func sortedRecords(records map[string]Record) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DestPath < out[j].DestPath
	})
	return out
}
