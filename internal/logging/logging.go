// Package logging provides structured, leveled logging in the classic
// go-ethereum/log15 key-value style, built on the standard library's
// log/slog instead of a vendored logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Logger mirrors the call shape used throughout this repository:
// Info("starting fetcher", "slot", slot, "worker", id).
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	With(ctx ...interface{}) Logger
}

const LevelTrace slog.Level = -8

var root atomic.Pointer[logger]

func init() {
	root.Store(newLogger(NewTerminalHandler(os.Stderr, slog.LevelInfo)))
}

// SetDefault installs l as the process-wide root logger when l was
// created by this package (New, Root, or With). Any other Logger
// implementation is not installed: the root logger is then replaced by
// a plain slog text logger writing to stderr.
func SetDefault(l Logger) {
	if lg, ok := l.(*logger); ok {
		root.Store(lg)
		return
	}
	root.Store(&logger{handler: slog.NewTextHandler(os.Stderr, nil)})
}

// Root returns the process-wide logger.
func Root() Logger { return root.Load() }

func Trace(msg string, ctx ...interface{}) { Root().Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { Root().Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { Root().Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { Root().Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { Root().Error(msg, ctx...) }

// New returns a fresh logger bound to the given handler.
func New(h slog.Handler) Logger { return newLogger(h) }

type logger struct {
	handler slog.Handler
	attrs   []any
}

func newLogger(h slog.Handler) *logger { return &logger{handler: h} }

func (l *logger) With(ctx ...interface{}) Logger {
	return &logger{handler: l.handler, attrs: append(append([]any{}, l.attrs...), ctx...)}
}

func (l *logger) log(level slog.Level, msg string, ctx []interface{}) {
	if !l.handler.Enabled(context.Background(), level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.Add(l.attrs...)
	r.Add(ctx...)
	_ = l.handler.Handle(context.Background(), r)
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.log(LevelTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.log(slog.LevelDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.log(slog.LevelInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.log(slog.LevelWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.log(slog.LevelError, msg, ctx) }

// NewTerminalHandler returns a handler that writes human-readable,
// optionally colorized lines when w is a terminal, falling back to
// plain text otherwise.
func NewTerminalHandler(w io.Writer, level slog.Leveler) slog.Handler {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd())
		if useColor {
			w = colorable.NewColorable(f)
		}
	}
	return &terminalHandler{out: w, level: level, color: useColor}
}
