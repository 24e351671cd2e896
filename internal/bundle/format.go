package bundle

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Signature opens every supported container.
const Signature = "UnityFS\x00"

// FormatVersion is the only container layout version Open accepts.
const FormatVersion uint32 = 1

const (
	headerSize      = 28
	compressionMask = 0x3f
	// class id, path id, two string lengths, payload offset, payload length.
	descriptorFixedBytes = 4 + 8 + 2 + 2 + 4 + 4
)

// MaxBodySize caps the decompressed body so a corrupt header cannot force a
// huge allocation.
const MaxBodySize = 1 << 30

// Compression identifies the scheme used for the container body. Values
// follow the UnityFS flag encoding; Zstd is an extension.
type Compression uint8

const (
	CompressionNone  Compression = 0
	CompressionLZMA  Compression = 1
	CompressionLZ4   Compression = 2
	CompressionLZ4HC Compression = 3
	CompressionZstd  Compression = 4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZMA:
		return "lzma"
	case CompressionLZ4:
		return "lz4"
	case CompressionLZ4HC:
		return "lz4hc"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// maxLZ4Ratio bounds how far an LZ4 block can expand: a match length grows by
// at most 255 per extra input byte.
const maxLZ4Ratio = 255

func decompressBody(compressed []byte, scheme Compression, rawSize int) ([]byte, error) {
	switch scheme {
	case CompressionNone:
		if len(compressed) != rawSize {
			return nil, fmt.Errorf("uncompressed body: size %d does not match declared %d", len(compressed), rawSize)
		}
		return compressed, nil
	case CompressionLZ4, CompressionLZ4HC:
		if int64(rawSize) > int64(len(compressed))*maxLZ4Ratio {
			return nil, fmt.Errorf("lz4 decompress: declared size %d is impossible for %d compressed bytes", rawSize, len(compressed))
		}
		destination := make([]byte, rawSize)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != rawSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, rawSize)
		}
		return destination, nil
	case CompressionZstd:
		return decompressZstd(compressed, rawSize)
	default:
		return nil, fmt.Errorf("unsupported compression %s", scheme)
	}
}

// decompressZstd streams the body so a frame that expands past rawSize is
// caught after rawSize+1 bytes instead of after a full allocation.
func decompressZstd(compressed []byte, rawSize int) ([]byte, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(compressed),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(MaxBodySize),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	defer decoder.Close()

	var destination bytes.Buffer
	destination.Grow(min(rawSize, len(compressed)*4))
	if _, err := destination.ReadFrom(io.LimitReader(decoder, int64(rawSize)+1)); err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if destination.Len() != rawSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", destination.Len(), rawSize)
	}
	return destination.Bytes(), nil
}
