// Package logrus adapts a logrus entry to resfetch.
package logrus

import (
	"github.com/sirupsen/logrus"

	rlog "github.com/unkn0wn-root/resfetch/log"
)

var _ rlog.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New tags every line with component=resfetch.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "resfetch")}
}

func (l LogrusLogger) Debug(msg string, f rlog.Fields) { l.log(logrus.DebugLevel, msg, f) }
func (l LogrusLogger) Info(msg string, f rlog.Fields)  { l.log(logrus.InfoLevel, msg, f) }
func (l LogrusLogger) Warn(msg string, f rlog.Fields)  { l.log(logrus.WarnLevel, msg, f) }
func (l LogrusLogger) Error(msg string, f rlog.Fields) { l.log(logrus.ErrorLevel, msg, f) }

func (l LogrusLogger) log(level logrus.Level, msg string, f rlog.Fields) {
	if !l.E.Logger.IsLevelEnabled(level) {
		return
	}
	e := l.E
	if len(f) > 0 {
		e = e.WithFields(logrus.Fields(f))
	}
	e.Log(level, msg)
}
