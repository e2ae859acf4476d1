package logger

import (
	"io"
	"log/slog"
)

// Init installs a JSON slog logger as the process default. Records use the
// timestamp, level and message keys and carry the service name.
func Init(writer io.Writer, level slog.Level) {
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameKeys,
	})
	slog.SetDefault(slog.New(handler).With("service", "leadflow"))
}

func renameKeys(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}
