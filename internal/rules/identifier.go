package rules

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/SegaraRai/uabxautomate/internal/bundle"
)

// DefaultTemplate is the identifier template used when a target omits one.
const DefaultTemplate = "{container}#{name}"

// Identifier expands template for entry. Recognized placeholders are
// {container}, {name}, {index}, {path_id}, {type}, {bundle_path} and
// {bundle_name}; anything else in braces is kept verbatim. The result is NFC
// normalized so visually identical names match the same patterns.
func Identifier(template string, entry bundle.ObjectEntry, bundlePath string) string {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			b.WriteString(rest)
			break
		}
		closing += open
		b.WriteString(rest[:open])
		value, ok := placeholder(rest[open+1:closing], entry, bundlePath)
		if !ok {
			b.WriteByte('{')
			rest = rest[open+1:]
			continue
		}
		b.WriteString(value)
		rest = rest[closing+1:]
	}
	return norm.NFC.String(b.String())
}

func placeholder(name string, entry bundle.ObjectEntry, bundlePath string) (string, bool) {
	switch name {
	case "container":
		return entry.Container, true
	case "name":
		return entry.Name, true
	case "index":
		return strconv.Itoa(entry.Index), true
	case "path_id":
		return strconv.FormatInt(entry.PathID, 10), true
	case "type":
		return entry.Type.String(), true
	case "bundle_path":
		return filepath.ToSlash(bundlePath), true
	case "bundle_name":
		return path.Base(filepath.ToSlash(bundlePath)), true
	default:
		return "", false
	}
}
