// Package discovery expands the configured source pattern into input files.
package discovery

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoInputs reports that the source pattern matched no files. Callers treat
// it as an empty run rather than a failure.
var ErrNoInputs = errors.New("no input files matched")

// Find returns the regular files matching src, minus those matching any
// exclude pattern, in lexical order. Patterns support "**". An exclude pattern
// without a slash is matched against the file name only.
func Find(src string, exclude []string) ([]string, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.New("source pattern is empty")
	}
	pattern := filepath.ToSlash(src)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid source pattern %q", src)
	}
	for _, ex := range exclude {
		if !doublestar.ValidatePattern(filepath.ToSlash(ex)) {
			return nil, fmt.Errorf("invalid exclude pattern %q", ex)
		}
	}

	matches, err := doublestar.FilepathGlob(src, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", src, err)
	}

	inputs := make([]string, 0, len(matches))
	for _, match := range matches {
		if excluded(match, exclude) {
			continue
		}
		inputs = append(inputs, match)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInputs, src)
	}
	sort.Strings(inputs)
	return inputs, nil
}

func excluded(path string, patterns []string) bool {
	slashed := filepath.ToSlash(path)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		subject := slashed
		if !strings.Contains(pattern, "/") {
			subject = filepath.Base(path)
		}
		if ok, _ := doublestar.Match(pattern, subject); ok {
			return true
		}
	}
	return false
}
