// Package slog adapts a *slog.Logger (any handler, e.g. tint) to resfetch.
package slog

import (
	"context"
	stdslog "log/slog"

	rlog "github.com/unkn0wn-root/resfetch/log"
)

var _ rlog.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

func New(l *stdslog.Logger) Logger { return Logger{L: l} }

func (s Logger) Debug(msg string, f rlog.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f rlog.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f rlog.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f rlog.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(level stdslog.Level, msg string, f rlog.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	var attrs []stdslog.Attr
	if len(f) > 0 {
		attrs = make([]stdslog.Attr, 0, len(f))
		for _, k := range f.Keys() {
			attrs = append(attrs, stdslog.Any(k, f[k]))
		}
	}
	s.L.LogAttrs(ctx, level, msg, attrs...)
}
