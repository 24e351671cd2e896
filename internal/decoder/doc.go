// Package decoder turns raw object payloads into output-ready artifacts.
//
// The supported set is closed: texture2d and sprite payloads become images,
// text payloads become verbatim bytes. Every other type tag yields
// ErrUnsupportedType, which callers report and skip. Malformed payloads of a
// supported type yield ErrDecode.
package decoder
