package decoder

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/SegaraRai/uabxautomate/internal/bundle"
)

var (
	// ErrUnsupportedType marks an object type without a decoder.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrDecode marks a malformed payload of a supported type.
	ErrDecode = errors.New("decode error")
)

// Kind distinguishes artifact representations.
type Kind int

const (
	KindBytes Kind = iota
	KindImage
)

func (k Kind) String() string {
	if k == KindImage {
		return "image"
	}
	return "bytes"
}

// Artifact is a decoded payload ready to be written.
type Artifact struct {
	Kind  Kind
	Bytes []byte
	Image image.Image
}

// Supported reports whether tag has a decoder, without decoding anything.
func Supported(tag bundle.TypeTag) bool {
	switch tag {
	case bundle.TypeTexture2D, bundle.TypeSprite, bundle.TypeTextAsset:
		return true
	default:
		return false
	}
}

// Decode converts payload according to tag.
func Decode(tag bundle.TypeTag, payload []byte) (Artifact, error) {
	switch tag {
	case bundle.TypeTexture2D:
		img, err := decodeTexture(payload)
		if err != nil {
			return Artifact{}, err
		}
		return Artifact{Kind: KindImage, Image: img}, nil
	case bundle.TypeSprite:
		img, err := decodeSprite(payload)
		if err != nil {
			return Artifact{}, err
		}
		return Artifact{Kind: KindImage, Image: img}, nil
	case bundle.TypeTextAsset:
		text, err := decodeText(payload)
		if err != nil {
			return Artifact{}, err
		}
		return Artifact{Kind: KindBytes, Bytes: text}, nil
	default:
		return Artifact{}, fmt.Errorf("%w: %s", ErrUnsupportedType, tag)
	}
}

// Encode writes the artifact. Images are encoded as JPEG when dest ends in
// .jpg or .jpeg and as PNG otherwise.
func (a Artifact) Encode(w io.Writer, dest string) error {
	switch a.Kind {
	case KindBytes:
		_, err := w.Write(a.Bytes)
		return err
	case KindImage:
		if a.Image == nil {
			return errors.New("image artifact has no image")
		}
		switch strings.ToLower(filepath.Ext(dest)) {
		case ".jpg", ".jpeg":
			return jpeg.Encode(w, a.Image, &jpeg.Options{Quality: 95})
		default:
			return png.Encode(w, a.Image)
		}
	default:
		return fmt.Errorf("unknown artifact kind %d", a.Kind)
	}
}

func decodeErr(typeName, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrDecode, typeName, fmt.Sprintf(format, args...))
}
