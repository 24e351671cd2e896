package bundletest

import (
	"bytes"
	"encoding/binary"
	"image/color"
)

// Texture formats understood by the decoder.
const (
	FormatAlpha8   int32 = 1
	FormatRGB24    int32 = 3
	FormatRGBA32   int32 = 4
	FormatARGB32   int32 = 5
	FormatRGB565   int32 = 7
	FormatDXT1     int32 = 10
	FormatDXT5     int32 = 12
	FormatRGBA4444 int32 = 13
	FormatBGRA32   int32 = 14
)

// TextPayload encodes a text object payload.
func TextPayload(text string) []byte {
	var buf bytes.Buffer
	writeBE(&buf, uint32(len(text)))
	buf.WriteString(text)
	return buf.Bytes()
}

// TexturePayload encodes a texture2d payload around raw pixel data.
func TexturePayload(width, height int32, format int32, mipCount int32, data []byte) []byte {
	var buf bytes.Buffer
	writeBE(&buf, width)
	writeBE(&buf, height)
	writeBE(&buf, format)
	writeBE(&buf, mipCount)
	writeBE(&buf, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

// RGBA32Texture encodes rows (top row first, as an image would be viewed)
// into a bottom-up RGBA32 texture payload with a single mip level.
func RGBA32Texture(rows [][]color.NRGBA) []byte {
	height := len(rows)
	width := 0
	if height > 0 {
		width = len(rows[0])
	}
	data := make([]byte, 0, width*height*4)
	for y := height - 1; y >= 0; y-- {
		for _, c := range rows[y] {
			data = append(data, c.R, c.G, c.B, c.A)
		}
	}
	return TexturePayload(int32(width), int32(height), FormatRGBA32, 1, data)
}

// SpritePayload encodes a sprite payload: a bottom-left origin rect followed
// by the embedded texture payload.
func SpritePayload(x, y, w, h float32, texture []byte) []byte {
	var buf bytes.Buffer
	for _, v := range []float32{x, y, w, h} {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}
	buf.Write(texture)
	return buf.Bytes()
}
