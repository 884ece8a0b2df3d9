// Package logger provides the leveled logger used by every actor and by
// the client façade. It is a thin wrapper over logrus so call sites read
// the same way across the module regardless of which concrete backend is
// configured.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the interface every component logs through. Method names
// mirror the call sites used throughout the actors: a Debugln/Infof pair
// per level plus a bare Error/Errorln for already-formatted errors.
type Logger interface {
	Debugln(args ...interface{})
	Debugf(format string, args ...interface{})
	Infoln(args ...interface{})
	Infof(format string, args ...interface{})
	Warningln(args ...interface{})
	Warningf(format string, args ...interface{})
	Errorln(args ...interface{})
	Errorf(format string, args ...interface{})
	Error(err error)
}

type entryLogger struct {
	*logrus.Entry
}

func (l entryLogger) Warningln(args ...interface{})                 { l.Entry.Warnln(args...) }
func (l entryLogger) Warningf(format string, args ...interface{})   { l.Entry.Warnf(format, args...) }
func (l entryLogger) Error(err error) {
	if err == nil {
		return
	}
	l.Entry.Errorln(err.Error())
}

var root = logrus.New()

func init() {
	root.Out = os.Stderr
	root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	root.SetLevel(levelFromEnv())
}

// levelFromEnv mirrors the original implementation's env-driven level
// selection: LOG_LEVEL takes priority, SOULSEEK_LOG is the fallback name,
// VERBOSE is accepted as an alias for DEBUG, and anything unrecognized
// defaults to WARN.
func levelFromEnv() logrus.Level {
	v := os.Getenv("LOG_LEVEL")
	if v == "" {
		v = os.Getenv("SOULSEEK_LOG")
	}
	switch strings.ToUpper(v) {
	case "ERROR":
		return logrus.ErrorLevel
	case "WARN":
		return logrus.WarnLevel
	case "INFO":
		return logrus.InfoLevel
	case "DEBUG", "VERBOSE":
		return logrus.DebugLevel
	case "TRACE":
		return logrus.TraceLevel
	default:
		return logrus.WarnLevel
	}
}

// New returns a named Logger. The name is attached as a "component" field
// so log lines can be filtered per actor the way rain tags its loggers by
// constructor argument (e.g. logger.New("session")).
func New(name string) Logger {
	return entryLogger{Entry: root.WithField("component", name)}
}
