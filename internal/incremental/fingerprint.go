package incremental

import (
	"encoding/binary"
	"encoding/hex"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/SegaraRai/uabxautomate/internal/bundle"
)

// outputVersion is mixed into every fingerprint. Bump it when decoder output
// changes so existing destinations are rewritten.
const outputVersion = 1

// fingerprintKey is the ASCII domain name zero-padded to the 32 byte BLAKE3
// key size.
var fingerprintKey = [32]byte{
	'u', 'a', 'b', 'x', 'a', 'u', 't', 'o', 'm', 'a', 't', 'e', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't',
}

// Source identifies the object a destination is produced from.
type Source struct {
	BundlePath string
	Entry      bundle.ObjectEntry
	Payload    []byte
}

// Fingerprint derives the change-detection value for src: its bundle path,
// logical identity, payload span and a hash of the payload bytes.
func Fingerprint(src Source) string {
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		panic("incremental: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	payloadHash := blake3.Sum256(src.Payload)

	var buf []byte
	buf = binary.BigEndian.AppendUint32(buf, outputVersion)
	buf = appendString(buf, filepath.ToSlash(src.BundlePath))
	buf = binary.BigEndian.AppendUint64(buf, uint64(src.Entry.PathID))
	buf = binary.BigEndian.AppendUint32(buf, uint32(src.Entry.Type))
	buf = appendString(buf, src.Entry.Container)
	buf = appendString(buf, src.Entry.Name)
	buf = binary.BigEndian.AppendUint64(buf, uint64(src.Entry.Offset))
	buf = binary.BigEndian.AppendUint64(buf, uint64(src.Entry.Length))
	buf = append(buf, payloadHash[:]...)

	_, _ = hasher.Write(buf)
	return hex.EncodeToString(hasher.Sum(nil))
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
