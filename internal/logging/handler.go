package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// terminalHandler renders records as "LVL [time] msg key=val key=val ...",
// matching the line shape go-ethereum/luxfi terminal logs use.
type terminalHandler struct {
	mu    sync.Mutex
	out   io.Writer
	level slog.Leveler
	color bool
}

func (h *terminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(levelString(r.Level, h.color))
	buf.WriteString(" [")
	buf.WriteString(r.Time.Format("2006-01-02T15:04:05.000"))
	buf.WriteString("] ")
	buf.WriteString(r.Message)

	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *terminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *terminalHandler) WithGroup(name string) slog.Handler       { return h }

func levelString(level slog.Level, color bool) string {
	var plain string
	var ansi string
	switch {
	case level < slog.LevelDebug:
		plain, ansi = "TRCE", "\x1b[90mTRCE\x1b[0m"
	case level < slog.LevelInfo:
		plain, ansi = "DBUG", "\x1b[36mDBUG\x1b[0m"
	case level < slog.LevelWarn:
		plain, ansi = "INFO", "\x1b[32mINFO\x1b[0m"
	case level < slog.LevelError:
		plain, ansi = "WARN", "\x1b[33mWARN\x1b[0m"
	default:
		plain, ansi = "EROR", "\x1b[31mEROR\x1b[0m"
	}
	if color {
		return ansi
	}
	return plain
}
