package extract

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/SegaraRai/uabxautomate/internal/bundle"
	"github.com/SegaraRai/uabxautomate/internal/decoder"
	"github.com/SegaraRai/uabxautomate/internal/rules"
)

// Kind classifies a failure in the report.
type Kind string

const (
	KindCorruptContainer Kind = "corrupt_container"
	KindUnsupportedType  Kind = "unsupported_type"
	KindDecodeError      Kind = "decode_error"
	KindTemplateError    Kind = "template_error"
	KindPathEscape       Kind = "path_escape"
	KindIOError          Kind = "io_error"
	KindCanceled         Kind = "canceled"
	KindInternal         Kind = "internal"
)

// ErrIO marks filesystem failures while reading inputs or writing outputs.
var ErrIO = errors.New("io error")

// ErrorClassifier lets errors declare their own kind.
type ErrorClassifier interface {
	ErrorKind() string
}

// KindOf maps err to its report kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return Kind(classifier.ErrorKind())
	}
	switch {
	case errors.Is(err, bundle.ErrCorruptContainer):
		return KindCorruptContainer
	case errors.Is(err, decoder.ErrUnsupportedType):
		return KindUnsupportedType
	case errors.Is(err, decoder.ErrDecode):
		return KindDecodeError
	case errors.Is(err, rules.ErrPathEscape):
		return KindPathEscape
	case errors.Is(err, rules.ErrTemplate):
		return KindTemplateError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrIO):
		return KindIOError
	}
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) {
		return KindIOError
	}
	return KindInternal
}

// hint returns the next step shown alongside a failure of kind k.
func hint(k Kind) string {
	switch k {
	case KindCorruptContainer:
		return "check that the file is an uncompressed, LZ4 or zstd asset bundle"
	case KindDecodeError:
		return "the object payload is malformed or uses an unsupported texture format"
	case KindTemplateError:
		return "check the target's dest template and capture groups"
	case KindPathEscape:
		return "dest templates must stay inside the destination root"
	case KindIOError:
		return "check permissions and free space under the destination root"
	default:
		return "check logs for details"
	}
}
