package decoder

import (
	"encoding/binary"
	"image"
	"image/draw"
	"math"
)

const spriteRectSize = 16

// decodeSprite crops the embedded texture to the sprite rect. The rect uses a
// bottom-left origin like the texture storage.
func decodeSprite(payload []byte) (*image.NRGBA, error) {
	if len(payload) < spriteRectSize {
		return nil, decodeErr("sprite", "payload is %d bytes, rect needs %d", len(payload), spriteRectSize)
	}
	var rect [4]float32
	for i := range rect {
		rect[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[i*4:]))
	}
	texture, err := decodeTexture(payload[spriteRectSize:])
	if err != nil {
		return nil, err
	}

	x, y := roundPixel(rect[0]), roundPixel(rect[1])
	w, h := roundPixel(rect[2]), roundPixel(rect[3])
	bounds := texture.Bounds()
	if w <= 0 || h <= 0 || x < 0 || y < 0 || x+w > bounds.Dx() || y+h > bounds.Dy() {
		return nil, decodeErr("sprite", "rect (%g,%g %gx%g) outside %dx%d texture",
			rect[0], rect[1], rect[2], rect[3], bounds.Dx(), bounds.Dy())
	}

	top := bounds.Dy() - y - h
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), texture, image.Pt(x, top), draw.Src)
	return out, nil
}
