package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/SegaraRai/uabxautomate/internal/bundle/bundletest"
)

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteBundle encodes b and writes it to path.
func WriteBundle(t testing.TB, path string, b *bundletest.Builder) {
	t.Helper()
	WriteFile(t, path, b.MustBuild(t))
}

// Snapshot maps every regular file under root, relative and slash separated,
// to its contents. A missing root yields an empty map.
func Snapshot(t testing.TB, root string) map[string]string {
	t.Helper()

	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot %s: %v", root, err)
	}
	return files
}
