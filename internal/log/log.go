package log

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

type ctxKey int

const entryKey ctxKey = iota

// Init configures the standard logrus logger. JSON output is used unless
// format is "text".
func Init(level logrus.Level, format string) {
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
	if format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})
}

// ParseLevel returns info for unknown levels.
func ParseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func ToContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, entryKey, entry)
}

func FromContext(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(entryKey).(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
