package bundle_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"strings"
	"testing"

	"github.com/SegaraRai/uabxautomate/internal/bundle"
	"github.com/SegaraRai/uabxautomate/internal/bundle/bundletest"
)

func sampleBuilder() *bundletest.Builder {
	return bundletest.New().
		Add(bundletest.Object{
			Type:      bundle.TypeTextAsset,
			PathID:    101,
			Container: "Assets/text/intro.txt",
			Name:      "intro",
			Payload:   bundletest.TextPayload(strings.Repeat("hello world ", 32)),
		}).
		Add(bundletest.Object{
			Type:      bundle.TypeMonoBehaviour,
			PathID:    -7,
			Container: "Assets/scripts/main",
			Name:      "Main",
			Payload:   bytes.Repeat([]byte{0xab}, 64),
		})
}

func TestOpenIndexesObjects(t *testing.T) {
	data := sampleBuilder().MustBuild(t)

	b, err := bundle.Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("expected 2 objects, got %d", b.Len())
	}

	first := b.Objects[0]
	if first.Type != bundle.TypeTextAsset || first.PathID != 101 {
		t.Fatalf("unexpected first object: %+v", first)
	}
	if got := first.Identifier(); got != "Assets/text/intro.txt#intro" {
		t.Fatalf("unexpected identifier %q", got)
	}
	if !bytes.Equal(b.Payload(first), bundletest.TextPayload(strings.Repeat("hello world ", 32))) {
		t.Fatal("first payload mismatch")
	}

	second := b.Objects[1]
	if second.Index != 1 || second.PathID != -7 || second.Type != bundle.TypeMonoBehaviour {
		t.Fatalf("unexpected second object: %+v", second)
	}
	if !bytes.Equal(b.Payload(second), bytes.Repeat([]byte{0xab}, 64)) {
		t.Fatal("second payload mismatch")
	}
}

func TestOpenDecompressesBody(t *testing.T) {
	for _, scheme := range []bundle.Compression{
		bundle.CompressionNone,
		bundle.CompressionLZ4,
		bundle.CompressionLZ4HC,
		bundle.CompressionZstd,
	} {
		t.Run(scheme.String(), func(t *testing.T) {
			builder := sampleBuilder()
			builder.Compression = scheme
			b, err := bundle.Open(builder.MustBuild(t))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if b.Compression != scheme {
				t.Fatalf("compression = %s, want %s", b.Compression, scheme)
			}
			if b.Len() != 2 {
				t.Fatalf("expected 2 objects, got %d", b.Len())
			}
		})
	}
}

func TestOpenRejectsCorruptContainers(t *testing.T) {
	valid := sampleBuilder().MustBuild(t)

	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{"empty", func(*testing.T) []byte { return nil }},
		{"truncated header", func(*testing.T) []byte { return valid[:20] }},
		{"bad signature", func(*testing.T) []byte {
			out := append([]byte(nil), valid...)
			copy(out, "UnityWeb")
			return out
		}},
		{"unsupported version", func(t *testing.T) []byte {
			b := sampleBuilder()
			b.Version = 9
			return b.MustBuild(t)
		}},
		{"lzma body", func(t *testing.T) []byte {
			b := sampleBuilder()
			b.Compression = bundle.CompressionLZMA
			return b.MustBuild(t)
		}},
		{"reserved bits", func(t *testing.T) []byte {
			b := sampleBuilder()
			b.Reserved = 1
			return b.MustBuild(t)
		}},
		{"truncated body", func(*testing.T) []byte { return valid[:len(valid)-10] }},
		{"count exceeds directory", func(t *testing.T) []byte {
			b := sampleBuilder()
			b.CountDelta = 3
			return b.MustBuild(t)
		}},
		{"count short of directory", func(t *testing.T) []byte {
			b := sampleBuilder()
			b.CountDelta = -1
			return b.MustBuild(t)
		}},
		{"directory overstated", func(t *testing.T) []byte {
			b := sampleBuilder()
			b.DirectoryDelta = 4
			return b.MustBuild(t)
		}},
		{"span out of range", func(t *testing.T) []byte {
			return bundletest.New().Add(bundletest.Object{
				Type:      bundle.TypeTextAsset,
				Container: "a",
				Name:      "b",
				Payload:   []byte("abc"),
				Span:      &[2]uint32{1, 3},
			}).MustBuild(t)
		}},
		{"lz4 size beyond expansion limit", func(t *testing.T) []byte {
			b := sampleBuilder()
			b.Compression = bundle.CompressionLZ4
			return withRawSize(b.MustBuild(t), 1<<30)
		}},
		{"zstd size overstated", func(t *testing.T) []byte {
			b := sampleBuilder()
			b.Compression = bundle.CompressionZstd
			return withRawSize(b.MustBuild(t), 1<<30)
		}},
		{"zstd body larger than declared", func(t *testing.T) []byte {
			b := sampleBuilder().Add(bundletest.Object{
				Type:      bundle.TypeTextAsset,
				Container: "Assets/text/zeros.txt",
				Name:      "zeros",
				Payload:   make([]byte, 8<<20),
			})
			b.Compression = bundle.CompressionZstd
			return withRawSize(b.MustBuild(t), 64)
		}},
		{"invalid utf8", func(t *testing.T) []byte {
			return bundletest.New().Add(bundletest.Object{
				Type:      bundle.TypeTextAsset,
				Container: "\xff\xfe",
				Name:      "b",
			}).MustBuild(t)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := bundle.Open(tc.data(t))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, bundle.ErrCorruptContainer) {
				t.Fatalf("expected ErrCorruptContainer, got %v", err)
			}
		})
	}
}

// withRawSize rewrites the declared decompressed body size.
func withRawSize(data []byte, size uint32) []byte {
	out := append([]byte(nil), data...)
	binary.BigEndian.PutUint32(out[20:24], size)
	return out
}

func TestOpenDoesNotAllocateDeclaredSizeUpFront(t *testing.T) {
	for _, scheme := range []bundle.Compression{bundle.CompressionLZ4, bundle.CompressionZstd} {
		t.Run(scheme.String(), func(t *testing.T) {
			b := sampleBuilder()
			b.Compression = scheme
			data := withRawSize(b.MustBuild(t), 1<<30)

			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			_, err := bundle.Open(data)
			runtime.ReadMemStats(&after)
			if !errors.Is(err, bundle.ErrCorruptContainer) {
				t.Fatalf("expected ErrCorruptContainer, got %v", err)
			}
			if allocated := after.TotalAlloc - before.TotalAlloc; allocated > 64<<20 {
				t.Fatalf("Open allocated %d bytes for a corrupt header", allocated)
			}
		})
	}
}

func TestOpenRandomContainersKeepSpansInBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for iteration := 0; iteration < 50; iteration++ {
		builder := bundletest.New()
		count := rng.IntN(12)
		for i := 0; i < count; i++ {
			payload := make([]byte, rng.IntN(256))
			for j := range payload {
				payload[j] = byte(rng.IntN(256))
			}
			builder.Add(bundletest.Object{
				Type:      bundle.TypeTag(rng.IntN(300)),
				PathID:    rng.Int64(),
				Container: fmt.Sprintf("Assets/%d/%d", iteration, i),
				Name:      fmt.Sprintf("obj%d", i),
				Payload:   payload,
			})
		}

		data := builder.MustBuild(t)
		b, err := bundle.Open(data)
		if err != nil {
			t.Fatalf("iteration %d: Open: %v", iteration, err)
		}
		if b.Len() != count {
			t.Fatalf("iteration %d: got %d objects, want %d", iteration, b.Len(), count)
		}
		for _, obj := range b.Objects {
			if obj.Offset < 0 || obj.Length < 0 || obj.Offset+obj.Length > len(data) {
				t.Fatalf("iteration %d: span out of bounds: %+v", iteration, obj)
			}
			_ = b.Payload(obj)
		}
	}
}

func TestTypeTagNames(t *testing.T) {
	for _, name := range bundle.SelectableTypes() {
		tag, err := bundle.ParseTypeTag(name)
		if err != nil {
			t.Fatalf("ParseTypeTag(%q): %v", name, err)
		}
		if tag.String() != name {
			t.Fatalf("round trip %q -> %s", name, tag)
		}
	}
	_, err := bundle.ParseTypeTag("audioclip")
	if err == nil {
		t.Fatal("expected error for unselectable type")
	}
	if !strings.Contains(err.Error(), "sprite, texture2d, text") {
		t.Fatalf("error should list selectable types: %v", err)
	}
	if got := bundle.TypeAudioClip.String(); got != "AudioClip" {
		t.Fatalf("unexpected AudioClip name %q", got)
	}
	if got := bundle.TypeTag(999).String(); got != "Class(999)" {
		t.Fatalf("unexpected unknown class name %q", got)
	}
}
