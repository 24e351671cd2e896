package rules

import (
	"path/filepath"
)

// Resolve joins a rendered relative destination onto root. rel is validated
// again so callers can pass untrusted input.
func Resolve(root, rel string) (string, error) {
	clean, err := normalizeRelative(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}
