// Package bundle parses asset bundle containers into an immutable object index.
//
// A container starts with a fixed "UnityFS\0" header that declares the body
// compression and sizes. The decompressed body holds a directory of object
// descriptors (class id, path id, container path, name, payload span)
// followed by the data region the spans point into. Open validates every
// structural invariant up front, so callers can slice payloads without
// further bounds checks.
//
// Open never touches the filesystem; ReadFile is a thin convenience wrapper
// for callers that start from a path.
package bundle
