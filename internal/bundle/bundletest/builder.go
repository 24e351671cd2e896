// Package bundletest builds container byte streams for tests, including
// deliberately malformed ones.
package bundletest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/SegaraRai/uabxautomate/internal/bundle"
)

// Object is one directory entry plus its payload.
type Object struct {
	Type      bundle.TypeTag
	PathID    int64
	Container string
	Name      string
	Payload   []byte

	// Span overrides the computed payload offset/length when non-nil.
	Span *[2]uint32
}

// Builder assembles a container.
type Builder struct {
	Compression bundle.Compression
	Version     uint32
	Reserved    uint32

	// CountDelta is added to the declared object count.
	CountDelta int
	// DirectoryDelta is added to the declared directory size.
	DirectoryDelta int

	objects []Object
}

// New returns a builder for an uncompressed, well-formed container.
func New() *Builder {
	return &Builder{Compression: bundle.CompressionNone, Version: bundle.FormatVersion}
}

// Add appends an object and returns the builder for chaining.
func (b *Builder) Add(obj Object) *Builder {
	b.objects = append(b.objects, obj)
	return b
}

// Build encodes the container.
func (b *Builder) Build() ([]byte, error) {
	var dir, data bytes.Buffer
	for i, obj := range b.objects {
		if len(obj.Container) > math.MaxUint16 || len(obj.Name) > math.MaxUint16 {
			return nil, fmt.Errorf("object %d: identifier strings too long", i)
		}
		offset, length := uint32(data.Len()), uint32(len(obj.Payload))
		if obj.Span != nil {
			offset, length = obj.Span[0], obj.Span[1]
		}
		data.Write(obj.Payload)

		writeBE(&dir, int32(obj.Type))
		writeBE(&dir, obj.PathID)
		writeBE(&dir, uint16(len(obj.Container)))
		dir.WriteString(obj.Container)
		writeBE(&dir, uint16(len(obj.Name)))
		dir.WriteString(obj.Name)
		writeBE(&dir, offset)
		writeBE(&dir, length)
	}

	var body bytes.Buffer
	writeBE(&body, uint32(len(b.objects)+b.CountDelta))
	writeBE(&body, uint32(dir.Len()+b.DirectoryDelta))
	body.Write(dir.Bytes())
	body.Write(data.Bytes())

	compressed, err := compress(body.Bytes(), b.Compression)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.WriteString(bundle.Signature)
	writeBE(&out, b.Version)
	writeBE(&out, uint32(b.Compression))
	writeBE(&out, uint32(len(compressed)))
	writeBE(&out, uint32(body.Len()))
	writeBE(&out, b.Reserved)
	out.Write(compressed)
	return out.Bytes(), nil
}

// MustBuild encodes the container or fails the test.
func (b *Builder) MustBuild(t testing.TB) []byte {
	t.Helper()
	data, err := b.Build()
	if err != nil {
		t.Fatalf("build container: %v", err)
	}
	return data
}

func compress(body []byte, scheme bundle.Compression) ([]byte, error) {
	switch scheme {
	case bundle.CompressionNone:
		return body, nil
	case bundle.CompressionLZ4, bundle.CompressionLZ4HC:
		destination := make([]byte, lz4.CompressBlockBound(len(body)))
		written, err := lz4.CompressBlock(body, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 {
			return nil, errors.New("lz4 compress: body is incompressible")
		}
		return destination[:written], nil
	case bundle.CompressionZstd:
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer encoder.Close()
		return encoder.EncodeAll(body, nil), nil
	default:
		// Unsupported schemes are written raw so tests can exercise rejection.
		return body, nil
	}
}

func writeBE(buf *bytes.Buffer, v any) {
	_ = binary.Write(buf, binary.BigEndian, v)
}
