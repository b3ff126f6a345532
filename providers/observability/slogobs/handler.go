package slogobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler is a slog.Handler with the three Format renderings. Attributes
// are written in the order they were added, handler attributes first.
type Handler struct {
	opts   HandlerOptions
	mu     *sync.Mutex
	attrs  []slog.Attr
	prefix string
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Format Format
	Level  slog.Leveler
	Output io.Writer
	// Colors enables ANSI colors for compact and pretty output. When false
	// and Output is a terminal, colors are turned on anyway.
	Colors bool
}

// NewHandler returns a Handler. A nil opts writes compact INFO lines to stderr.
func NewHandler(opts *HandlerOptions) *Handler {
	var o HandlerOptions
	if opts != nil {
		o = *opts
	}
	if o.Output == nil {
		o.Output = os.Stderr
	}
	if o.Format == "" {
		o.Format = FormatCompact
	}
	if o.Level == nil {
		o.Level = slog.LevelInfo
	}
	if !o.Colors && o.Format != FormatJSON {
		if f, ok := o.Output.(*os.File); ok {
			o.Colors = isTerminal(f)
		}
	}
	return &Handler{opts: o, mu: &sync.Mutex{}}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	fields := h.fields(r)

	var buf bytes.Buffer
	switch h.opts.Format {
	case FormatJSON:
		if err := h.writeJSON(&buf, r, fields); err != nil {
			return err
		}
	case FormatPretty:
		h.writePretty(&buf, r, fields)
	default:
		h.writeCompact(&buf, r, fields)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.opts.Output.Write(buf.Bytes())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

type field struct {
	key   string
	value any
}

func (h *Handler) fields(r slog.Record) []field {
	out := make([]field, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		out = appendAttr(out, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		out = appendAttr(out, h.prefix, a)
		return true
	})
	return out
}

func appendAttr(out []field, prefix string, a slog.Attr) []field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return out
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			out = appendAttr(out, p, ga)
		}
		return out
	}
	v := a.Value.Any()
	if err, ok := v.(error); ok {
		v = err.Error()
	}
	return append(out, field{key: prefix + a.Key, value: v})
}

// writeCompact renders `2006-01-02 15:04:05 LEVEL msg → {"k":"v"}`.
func (h *Handler) writeCompact(buf *bytes.Buffer, r slog.Record, fields []field) {
	buf.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	buf.WriteByte(' ')
	h.writeLevel(buf, r.Level, fmt.Sprintf("%5s", levelString(r.Level)))
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	if len(fields) > 0 {
		buf.WriteString(" → ")
		if err := encodeObject(buf, fields); err != nil {
			buf.WriteString("[unencodable attributes]")
		}
	}
	buf.WriteByte('\n')
}

// writePretty renders the message followed by one tree line per attribute.
func (h *Handler) writePretty(buf *bytes.Buffer, r slog.Record, fields []field) {
	const indent = "                    "
	buf.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	buf.WriteByte(' ')
	buf.WriteString(levelIcon(r.Level))
	buf.WriteByte(' ')
	level := levelString(r.Level)
	h.writeLevel(buf, r.Level, level)
	buf.WriteString(strings.Repeat(" ", 7-len(level)))
	buf.WriteString(r.Message)
	buf.WriteByte('\n')
	for i, f := range fields {
		buf.WriteString(indent)
		if i == len(fields)-1 {
			buf.WriteString("└─ ")
		} else {
			buf.WriteString("├─ ")
		}
		fmt.Fprintf(buf, "%s: %v\n", f.key, f.value)
	}
}

func (h *Handler) writeJSON(buf *bytes.Buffer, r slog.Record, fields []field) error {
	head := []field{
		{key: "time", value: r.Time.Format("2006-01-02T15:04:05.000Z07:00")},
		{key: "level", value: levelString(r.Level)},
		{key: "msg", value: r.Message},
	}
	if err := encodeObject(buf, append(head, fields...)); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return nil
}

func (h *Handler) writeLevel(buf *bytes.Buffer, level slog.Level, text string) {
	if !h.opts.Colors {
		buf.WriteString(text)
		return
	}
	buf.WriteString(levelColor(level))
	buf.WriteString(text)
	buf.WriteString(colorReset)
}

// encodeObject writes fields as a JSON object, keeping their order. Later
// duplicates of a key win, matching what a map-based encoder would keep.
func encodeObject(buf *bytes.Buffer, fields []field) error {
	last := make(map[string]int, len(fields))
	for i, f := range fields {
		last[f.key] = i
	}
	buf.WriteByte('{')
	first := true
	for i, f := range fields {
		if last[f.key] != i {
			continue
		}
		key, err := json.Marshal(f.key)
		if err != nil {
			return err
		}
		val, err := json.Marshal(f.value)
		if err != nil {
			val, _ = json.Marshal(fmt.Sprint(f.value))
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return nil
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

func levelColor(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return colorGray
	case level < slog.LevelInfo:
		return colorBlue
	case level < slog.LevelWarn:
		return colorGreen
	case level < slog.LevelError:
		return colorYellow
	default:
		return colorRed
	}
}

func levelIcon(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "🔍"
	case level < slog.LevelInfo:
		return "🔵"
	case level < slog.LevelWarn:
		return "🟢"
	case level < slog.LevelError:
		return "🟡"
	default:
		return "🔴"
	}
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
