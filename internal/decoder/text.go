package decoder

import "encoding/binary"

func decodeText(payload []byte) ([]byte, error) {
	if len(payload) < 4 {
		return nil, decodeErr("text", "payload is %d bytes, need a 4 byte length", len(payload))
	}
	n := int64(binary.BigEndian.Uint32(payload))
	if n > int64(len(payload)-4) {
		return nil, decodeErr("text", "declared length %d exceeds payload (%d bytes)", n, len(payload)-4)
	}
	out := make([]byte, n)
	copy(out, payload[4:4+n])
	return out, nil
}
