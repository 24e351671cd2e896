package decoder

import (
	"encoding/binary"
	"image"
	"math"
)

// Unity TextureFormat values handled here.
const (
	formatAlpha8   int32 = 1
	formatRGB24    int32 = 3
	formatRGBA32   int32 = 4
	formatARGB32   int32 = 5
	formatRGB565   int32 = 7
	formatDXT1     int32 = 10
	formatDXT5     int32 = 12
	formatRGBA4444 int32 = 13
	formatBGRA32   int32 = 14
)

const (
	textureHeaderSize = 20
	maxTextureSide    = 16384
)

type textureHeader struct {
	width, height int
	format        int32
	mipCount      int32
	data          []byte
}

func parseTextureHeader(payload []byte) (textureHeader, error) {
	if len(payload) < textureHeaderSize {
		return textureHeader{}, decodeErr("texture2d", "payload is %d bytes, header needs %d", len(payload), textureHeaderSize)
	}
	width := int32(binary.BigEndian.Uint32(payload[0:4]))
	height := int32(binary.BigEndian.Uint32(payload[4:8]))
	format := int32(binary.BigEndian.Uint32(payload[8:12]))
	mipCount := int32(binary.BigEndian.Uint32(payload[12:16]))
	size := int64(binary.BigEndian.Uint32(payload[16:20]))

	if width <= 0 || height <= 0 || width > maxTextureSide || height > maxTextureSide {
		return textureHeader{}, decodeErr("texture2d", "invalid dimensions %dx%d", width, height)
	}
	if mipCount < 1 {
		return textureHeader{}, decodeErr("texture2d", "mip count %d", mipCount)
	}
	if size > int64(len(payload)-textureHeaderSize) {
		return textureHeader{}, decodeErr("texture2d", "declared data size %d exceeds payload (%d bytes)", size, len(payload)-textureHeaderSize)
	}
	return textureHeader{
		width:    int(width),
		height:   int(height),
		format:   format,
		mipCount: mipCount,
		data:     payload[textureHeaderSize : textureHeaderSize+size],
	}, nil
}

// mipZeroSize returns the byte size of the first mip level, or -1 for an
// unknown format.
func mipZeroSize(format int32, width, height int) int {
	blocks := ((width + 3) / 4) * ((height + 3) / 4)
	switch format {
	case formatAlpha8:
		return width * height
	case formatRGB565, formatRGBA4444:
		return width * height * 2
	case formatRGB24:
		return width * height * 3
	case formatRGBA32, formatARGB32, formatBGRA32:
		return width * height * 4
	case formatDXT1:
		return blocks * 8
	case formatDXT5:
		return blocks * 16
	default:
		return -1
	}
}

func decodeTexture(payload []byte) (*image.NRGBA, error) {
	hdr, err := parseTextureHeader(payload)
	if err != nil {
		return nil, err
	}
	need := mipZeroSize(hdr.format, hdr.width, hdr.height)
	if need < 0 {
		return nil, decodeErr("texture2d", "unsupported texture format %d", hdr.format)
	}
	if len(hdr.data) < need {
		return nil, decodeErr("texture2d", "mip 0 needs %d bytes, have %d", need, len(hdr.data))
	}
	data := hdr.data[:need]

	// Pixels are produced in storage order (bottom row first), then flipped.
	pix := make([]byte, hdr.width*hdr.height*4)
	switch hdr.format {
	case formatDXT1:
		decodeBlocks(data, hdr.width, hdr.height, 8, pix, func(block []byte, out *[16][4]byte) {
			decodeColorBlock(block, out, true)
		})
	case formatDXT5:
		decodeBlocks(data, hdr.width, hdr.height, 16, pix, func(block []byte, out *[16][4]byte) {
			decodeColorBlock(block[8:], out, false)
			decodeAlphaBlock(block[:8], out)
		})
	default:
		decodeRaw(hdr.format, data, pix)
	}
	return flipRows(pix, hdr.width, hdr.height), nil
}

func decodeRaw(format int32, data []byte, pix []byte) {
	n := len(pix) / 4
	for i := 0; i < n; i++ {
		o := pix[i*4 : i*4+4]
		switch format {
		case formatAlpha8:
			o[0], o[1], o[2], o[3] = 0xff, 0xff, 0xff, data[i]
		case formatRGB24:
			s := data[i*3:]
			o[0], o[1], o[2], o[3] = s[0], s[1], s[2], 0xff
		case formatRGBA32:
			copy(o, data[i*4:i*4+4])
		case formatARGB32:
			s := data[i*4:]
			o[0], o[1], o[2], o[3] = s[1], s[2], s[3], s[0]
		case formatBGRA32:
			s := data[i*4:]
			o[0], o[1], o[2], o[3] = s[2], s[1], s[0], s[3]
		case formatRGB565:
			r, g, b := unpack565(binary.LittleEndian.Uint16(data[i*2:]))
			o[0], o[1], o[2], o[3] = r, g, b, 0xff
		case formatRGBA4444:
			v := binary.LittleEndian.Uint16(data[i*2:])
			o[0] = byte(v>>12) * 17
			o[1] = byte(v>>8&0xf) * 17
			o[2] = byte(v>>4&0xf) * 17
			o[3] = byte(v&0xf) * 17
		}
	}
}

func decodeBlocks(data []byte, width, height, blockSize int, pix []byte, decode func([]byte, *[16][4]byte)) {
	blocksWide := (width + 3) / 4
	blocksHigh := (height + 3) / 4
	var texels [16][4]byte
	for by := 0; by < blocksHigh; by++ {
		for bx := 0; bx < blocksWide; bx++ {
			offset := (by*blocksWide + bx) * blockSize
			decode(data[offset:offset+blockSize], &texels)
			for ty := 0; ty < 4; ty++ {
				y := by*4 + ty
				if y >= height {
					break
				}
				for tx := 0; tx < 4; tx++ {
					x := bx*4 + tx
					if x >= width {
						break
					}
					copy(pix[(y*width+x)*4:], texels[ty*4+tx][:])
				}
			}
		}
	}
}

// decodeColorBlock decodes a BC1 colour block. allowAlpha enables the
// three-colour plus transparent mode used by DXT1 when c0 <= c1.
func decodeColorBlock(block []byte, out *[16][4]byte, allowAlpha bool) {
	c0 := binary.LittleEndian.Uint16(block[0:2])
	c1 := binary.LittleEndian.Uint16(block[2:4])
	indices := binary.LittleEndian.Uint32(block[4:8])

	var palette [4][4]byte
	r0, g0, b0 := unpack565(c0)
	r1, g1, b1 := unpack565(c1)
	palette[0] = [4]byte{r0, g0, b0, 0xff}
	palette[1] = [4]byte{r1, g1, b1, 0xff}
	if c0 > c1 || !allowAlpha {
		palette[2] = [4]byte{mix(r0, r1, 2, 1), mix(g0, g1, 2, 1), mix(b0, b1, 2, 1), 0xff}
		palette[3] = [4]byte{mix(r0, r1, 1, 2), mix(g0, g1, 1, 2), mix(b0, b1, 1, 2), 0xff}
	} else {
		palette[2] = [4]byte{mix(r0, r1, 1, 1), mix(g0, g1, 1, 1), mix(b0, b1, 1, 1), 0xff}
		palette[3] = [4]byte{0, 0, 0, 0}
	}
	for i := 0; i < 16; i++ {
		out[i] = palette[indices>>(2*i)&3]
	}
}

// decodeAlphaBlock decodes a BC3 alpha block into the alpha channel of out.
func decodeAlphaBlock(block []byte, out *[16][4]byte) {
	a0, a1 := int(block[0]), int(block[1])
	var levels [8]byte
	levels[0], levels[1] = byte(a0), byte(a1)
	if a0 > a1 {
		for i := 1; i < 7; i++ {
			levels[i+1] = byte(((7-i)*a0 + i*a1) / 7)
		}
	} else {
		for i := 1; i < 5; i++ {
			levels[i+1] = byte(((5-i)*a0 + i*a1) / 5)
		}
		levels[6], levels[7] = 0, 0xff
	}
	var bits uint64
	for i := 0; i < 6; i++ {
		bits |= uint64(block[2+i]) << (8 * i)
	}
	for i := 0; i < 16; i++ {
		out[i][3] = levels[bits>>(3*i)&7]
	}
}

func unpack565(v uint16) (r, g, b byte) {
	r5 := (v >> 11) & 0x1f
	g6 := (v >> 5) & 0x3f
	b5 := v & 0x1f
	return byte(r5<<3 | r5>>2), byte(g6<<2 | g6>>4), byte(b5<<3 | b5>>2)
}

func mix(a, b byte, wa, wb int) byte {
	return byte((int(a)*wa + int(b)*wb) / (wa + wb))
}

func flipRows(pix []byte, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	stride := width * 4
	for y := 0; y < height; y++ {
		src := pix[(height-1-y)*stride : (height-y)*stride]
		copy(img.Pix[y*img.Stride:], src)
	}
	return img
}

func roundPixel(v float32) int {
	return int(math.Round(float64(v)))
}
