// Package zap adapts a *zap.Logger to resfetch.
package zap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	rlog "github.com/unkn0wn-root/resfetch/log"
)

var _ rlog.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New names the logger "resfetch" below whatever name l already carries.
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("resfetch")} }

func (z ZapLogger) Debug(msg string, f rlog.Fields) { z.log(zapcore.DebugLevel, msg, f) }
func (z ZapLogger) Info(msg string, f rlog.Fields)  { z.log(zapcore.InfoLevel, msg, f) }
func (z ZapLogger) Warn(msg string, f rlog.Fields)  { z.log(zapcore.WarnLevel, msg, f) }
func (z ZapLogger) Error(msg string, f rlog.Fields) { z.log(zapcore.ErrorLevel, msg, f) }

func (z ZapLogger) log(level zapcore.Level, msg string, f rlog.Fields) {
	ce := z.L.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(fields(f)...)
}

func fields(f rlog.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for _, k := range f.Keys() {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
