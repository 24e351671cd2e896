package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"unicode/utf8"
)

// ErrCorruptContainer marks any structural problem with a container. It aborts
// processing of that container only.
var ErrCorruptContainer = errors.New("corrupt container")

// ObjectEntry describes one object in a container. Offset and Length address
// the owning Bundle's decompressed body.
type ObjectEntry struct {
	Index     int
	PathID    int64
	Type      TypeTag
	Container string
	Name      string
	Offset    int
	Length    int
}

// Identifier returns the default "{container}#{name}" identifier string.
func (e ObjectEntry) Identifier() string {
	return e.Container + "#" + e.Name
}

// Bundle is a parsed container: the decompressed body plus its object index.
type Bundle struct {
	Compression Compression
	Objects     []ObjectEntry

	body []byte
}

// Payload returns the payload bytes of entry. The slice aliases the bundle
// buffer and must not be modified.
func (b *Bundle) Payload(entry ObjectEntry) []byte {
	return b.body[entry.Offset : entry.Offset+entry.Length]
}

// Len returns the number of indexed objects.
func (b *Bundle) Len() int {
	return len(b.Objects)
}

// HasSignature reports whether data starts with the container signature.
func HasSignature(data []byte) bool {
	return len(data) >= len(Signature) && string(data[:len(Signature)]) == Signature
}

// ReadFile reads and parses the container at path.
func ReadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Open(data)
}

// Open parses buffer into a Bundle. All failures wrap ErrCorruptContainer.
func Open(buffer []byte) (*Bundle, error) {
	if len(buffer) < headerSize {
		return nil, corrupt("truncated header: %d bytes", len(buffer))
	}
	if !HasSignature(buffer) {
		return nil, corrupt("unrecognized signature %q", buffer[:len(Signature)])
	}
	version := binary.BigEndian.Uint32(buffer[8:12])
	if version != FormatVersion {
		return nil, corrupt("unsupported format version %d", version)
	}
	flags := binary.BigEndian.Uint32(buffer[12:16])
	scheme := Compression(flags & compressionMask)
	compressedSize := int64(binary.BigEndian.Uint32(buffer[16:20]))
	rawSize := int64(binary.BigEndian.Uint32(buffer[20:24]))
	if reserved := binary.BigEndian.Uint32(buffer[24:28]); reserved != 0 {
		return nil, corrupt("reserved header field is %#x", reserved)
	}
	if int64(len(buffer)-headerSize) != compressedSize {
		return nil, corrupt("body is %d bytes, header declares %d", len(buffer)-headerSize, compressedSize)
	}
	if rawSize > MaxBodySize {
		return nil, corrupt("declared body size %d exceeds limit %d", rawSize, int64(MaxBodySize))
	}

	body, err := decompressBody(buffer[headerSize:], scheme, int(rawSize))
	if err != nil {
		return nil, corrupt("%v", err)
	}

	objects, err := parseDirectory(body)
	if err != nil {
		return nil, err
	}
	return &Bundle{Compression: scheme, Objects: objects, body: body}, nil
}

func parseDirectory(body []byte) ([]ObjectEntry, error) {
	if len(body) < 8 {
		return nil, corrupt("truncated body: %d bytes", len(body))
	}
	count := int64(binary.BigEndian.Uint32(body[0:4]))
	dirSize := int64(binary.BigEndian.Uint32(body[4:8]))
	if dirSize > int64(len(body)-8) {
		return nil, corrupt("directory size %d exceeds body", dirSize)
	}
	if count*descriptorFixedBytes > dirSize {
		return nil, corrupt("%d objects cannot fit in a %d byte directory", count, dirSize)
	}

	dataStart := 8 + int(dirSize)
	dataLen := int64(len(body) - dataStart)
	cur := cursor{buf: body[8:dataStart]}
	objects := make([]ObjectEntry, 0, count)
	for i := 0; i < int(count); i++ {
		entry := ObjectEntry{Index: i}
		entry.Type = TypeTag(int32(cur.uint32()))
		entry.PathID = int64(cur.uint64())
		entry.Container = cur.string()
		entry.Name = cur.string()
		offset := int64(cur.uint32())
		length := int64(cur.uint32())
		if cur.err != nil {
			return nil, corrupt("object %d: %v", i, cur.err)
		}
		if offset+length > dataLen {
			return nil, corrupt("object %d: payload span [%d,%d) outside %d byte data region", i, offset, offset+length, dataLen)
		}
		entry.Offset = dataStart + int(offset)
		entry.Length = int(length)
		objects = append(objects, entry)
	}
	if cur.pos != len(cur.buf) {
		return nil, corrupt("directory declares %d bytes but %d objects use %d", dirSize, count, cur.pos)
	}
	return objects, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptContainer, fmt.Sprintf(format, args...))
}

// cursor reads big-endian fields and latches the first error.
type cursor struct {
	buf []byte
	pos int
	err error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n > len(c.buf)-c.pos {
		c.err = fmt.Errorf("truncated directory at byte %d (need %d more)", c.pos, n)
		return nil
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out
}

func (c *cursor) uint16() uint16 {
	if b := c.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (c *cursor) uint32() uint32 {
	if b := c.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (c *cursor) uint64() uint64 {
	if b := c.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (c *cursor) string() string {
	n := int(c.uint16())
	b := c.take(n)
	if c.err != nil {
		return ""
	}
	if !utf8.Valid(b) {
		c.err = fmt.Errorf("invalid UTF-8 string at byte %d", c.pos-n)
		return ""
	}
	return string(b)
}
