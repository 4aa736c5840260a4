// Package logging provides the console log handler used by the pulse CLI.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ConsoleHandler writes one colored line per record:
//
//	15:04:05.000 | INFO  | connection state changed from=connecting to=connected
//
// It is safe for concurrent use.
type ConsoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewConsoleHandler returns a handler writing records at or above level to w.
func NewConsoleHandler(w io.Writer, level slog.Leveler) *ConsoleHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &ConsoleHandler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(color.GreenString(r.Time.Format("15:04:05.000")))
	b.WriteString(" | ")
	b.WriteString(levelString(r.Level))
	b.WriteString(" | ")
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func levelString(l slog.Level) string {
	s := fmt.Sprintf("%-5s", l.String())
	switch {
	case l >= slog.LevelError:
		return color.RedString(s)
	case l >= slog.LevelWarn:
		return color.YellowString(s)
	case l >= slog.LevelInfo:
		return color.BlueString(s)
	default:
		return color.MagentaString(s)
	}
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix + a.Key + "."
		if a.Key == "" {
			p = prefix
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, p, ga)
		}
		return
	}
	b.WriteString(color.CyanString(" %s%s=", prefix, a.Key))
	fmt.Fprintf(b, "%v", a.Value.Any())
}

// WithAttrs implements slog.Handler.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

// WithGroup implements slog.Handler.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

// ParseLevel converts debug, info, warn or error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// Setup builds a console logger for the CLI. Colors are disabled when
// noColor is set or w is not a terminal.
func Setup(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	if noColor {
		color.NoColor = true
	}
	return slog.New(NewConsoleHandler(w, level))
}
