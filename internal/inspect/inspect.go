// Package inspect lists the objects of containers and classifies each one as
// supported or unsupported without decoding anything.
package inspect

import (
	"fmt"

	"github.com/SegaraRai/uabxautomate/internal/bundle"
	"github.com/SegaraRai/uabxautomate/internal/decoder"
)

// Entry describes one object.
type Entry struct {
	Index     int    `json:"index"`
	PathID    int64  `json:"path_id"`
	Container string `json:"container"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	ClassID   int32  `json:"class_id"`
	Size      int    `json:"size"`
	Supported bool   `json:"supported"`
}

// Listing is the inspection result for one file. Error is set when the file
// could not be read or parsed; Entries is then empty.
type Listing struct {
	Path        string  `json:"path"`
	Compression string  `json:"compression,omitempty"`
	Objects     int     `json:"objects"`
	Supported   int     `json:"supported"`
	Unsupported int     `json:"unsupported"`
	Entries     []Entry `json:"entries"`
	Error       string  `json:"error,omitempty"`
}

// File inspects one container. With onlySupported, unsupported objects are
// counted but left out of Entries.
func File(path string, onlySupported bool) (Listing, error) {
	listing := Listing{Path: path, Entries: []Entry{}}
	b, err := bundle.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("inspect %s: %w", path, err)
		listing.Error = err.Error()
		return listing, err
	}

	listing.Compression = b.Compression.String()
	listing.Objects = b.Len()
	for _, obj := range b.Objects {
		supported := decoder.Supported(obj.Type)
		if supported {
			listing.Supported++
		} else {
			listing.Unsupported++
		}
		if onlySupported && !supported {
			continue
		}
		listing.Entries = append(listing.Entries, Entry{
			Index:     obj.Index,
			PathID:    obj.PathID,
			Container: obj.Container,
			Name:      obj.Name,
			Type:      obj.Type.String(),
			ClassID:   int32(obj.Type),
			Size:      obj.Length,
			Supported: supported,
		})
	}
	return listing, nil
}

// Files inspects every path in order. File-level errors are recorded on the
// listing and do not stop the remaining files; the returned count says how
// many files failed.
func Files(paths []string, onlySupported bool) ([]Listing, int) {
	listings := make([]Listing, 0, len(paths))
	failed := 0
	for _, path := range paths {
		listing, err := File(path, onlySupported)
		if err != nil {
			failed++
		}
		listings = append(listings, listing)
	}
	return listings, failed
}
