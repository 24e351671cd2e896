package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders one header line per record followed by indented
// "- key: value" lines:
//
//	2026-01-02 15:04:05 INFO [extract] chars.bundle · hero_walk01 - object extracted
//	    - dest: hero/walk01.png
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	addSource bool

	// preset holds attrs from WithAttrs, already qualified by their groups.
	preset []field
	prefix string
}

type field struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]field, 0, len(h.preset)+record.NumAttrs())
	fields = append(fields, h.preset...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.prefix, attr)
		return true
	})
	fields = lastWins(fields)

	var component, input, object string
	shown := fields[:0:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = f.value.String()
			continue
		case FieldInput:
			input = f.value.String()
		case FieldObject:
			object = f.value.String()
		}
		if record.Level >= slog.LevelInfo && hiddenAtInfo(f.key) {
			continue
		}
		shown = append(shown, f)
	}

	var buf bytes.Buffer
	buf.WriteString(formatConsoleTime(record.Time))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if component != "" {
		fmt.Fprintf(&buf, " [%s]", component)
	}
	if subject := composeSubject(input, object); subject != "" {
		buf.WriteByte(' ')
		buf.WriteString(subject)
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}
	buf.WriteString(" - ")
	buf.WriteString(message)
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	buf.WriteByte('\n')
	for _, f := range shown {
		fmt.Fprintf(&buf, "    - %s: %s\n", f.key, consoleValue(f.value))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = make([]field, len(h.preset), len(h.preset)+len(attrs))
	copy(next.preset, h.preset)
	for _, attr := range attrs {
		next.preset = appendField(next.preset, h.prefix, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = qualify(h.prefix, name)
	return &next
}

// hiddenAtInfo lists correlation keys that only appear as field lines at
// debug level. Input and object still show up in the subject.
func hiddenAtInfo(key string) bool {
	return key == FieldRunID || key == FieldInput || key == FieldObject
}

// composeSubject renders "<file> · <object>" from whichever parts are set.
func composeSubject(input, object string) string {
	input = strings.TrimSpace(input)
	object = strings.TrimSpace(object)
	if input != "" {
		input = filepath.Base(input)
	}
	switch {
	case input != "" && object != "":
		return input + " · " + object
	case input != "":
		return input
	default:
		return object
	}
}

func appendField(dst []field, prefix string, attr slog.Attr) []field {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		group := attr.Value.Group()
		if len(group) == 0 {
			return dst
		}
		inner := prefix
		if attr.Key != "" {
			inner = qualify(prefix, attr.Key)
		}
		for _, a := range group {
			dst = appendField(dst, inner, a)
		}
		return dst
	}
	if attr.Key == "" {
		return dst
	}
	return append(dst, field{key: qualify(prefix, attr.Key), value: attr.Value})
}

func qualify(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// lastWins drops earlier duplicates of a key, keeping the first position and
// the last value.
func lastWins(fields []field) []field {
	if len(fields) < 2 {
		return fields
	}
	index := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func consoleValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return formatConsoleTime(v.Time())
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			s = x.Error()
		case []string:
			return strings.Join(x, ", ")
		default:
			s = fmt.Sprint(x)
		}
	default:
		return v.String()
	}
	if s == "" || strings.ContainsAny(s, "\n\r\t\"") {
		return strconv.Quote(s)
	}
	return s
}

func formatConsoleTime(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
