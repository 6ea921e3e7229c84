package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// marker is the symbol leading a console line for a level.
type marker struct {
	symbol string
	color  *color.Color
}

var (
	debugMarker = marker{"·", color.New(color.FgHiBlack)}
	infoMarker  = marker{"•", color.New(color.FgBlue, color.Bold)}
	warnMarker  = marker{"⚠", color.New(color.FgYellow, color.Bold)}
	errorMarker = marker{"✗", color.New(color.FgRed, color.Bold)}
	detailColor = color.New(color.FgHiBlack)
)

func markerFor(level slog.Level) marker {
	switch {
	case level >= slog.LevelError:
		return errorMarker
	case level >= slog.LevelWarn:
		return warnMarker
	case level >= slog.LevelInfo:
		return infoMarker
	default:
		return debugMarker
	}
}

// ConsoleHandler writes records the way the report output reads:
//
//	⚠ 已移除数字签名，修改后的文件需要重新签名
//	• 导入表分类完成 (total=3, static=2, dynamic=1)
//
// There is no timestamp. Colors go through fatih/color, so NO_COLOR and
// redirected output get plain text.
type ConsoleHandler struct {
	level  slog.Leveler
	w      io.Writer
	mu     *sync.Mutex
	prefix string // group path ending in "."
	fields []string
}

// NewConsoleHandler returns a ConsoleHandler writing to w.
func NewConsoleHandler(w io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	h := &ConsoleHandler{level: slog.LevelInfo, w: w, mu: &sync.Mutex{}}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	fields := append([]string(nil), h.fields...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendField(fields, h.prefix, a)
		return true
	})

	m := markerFor(r.Level)
	var sb strings.Builder
	sb.WriteString(m.color.Sprint(m.symbol))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)
	if len(fields) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(detailColor.Sprint("(" + strings.Join(fields, ", ") + ")"))
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.fields = append([]string(nil), h.fields...)
	for _, a := range attrs {
		clone.fields = appendField(clone.fields, h.prefix, a)
	}
	return &clone
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// appendField renders a as key=value. Groups are flattened into dotted keys.
func appendField(fields []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			fields = appendField(fields, prefix, ga)
		}
		return fields
	}
	return append(fields, prefix+a.Key+"="+formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	if v.Kind() != slog.KindString {
		return fmt.Sprint(v.Any())
	}
	s := v.String()
	if s == "" || strings.ContainsAny(s, " \t\n\",=()") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
