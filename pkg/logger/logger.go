package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs and returns the process logger. logFile "stdout" (or "")
// and "stderr" write to the stream without timestamps; any other value is
// opened for append. The returned closer releases the file and is never nil.
func Setup(logLevel string, logFile string) (*slog.Logger, io.Closer, error) {
	var logWriter io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	var handlerOptions = &slog.HandlerOptions{Level: getLogLevel(logLevel)}

	switch logFile {
	case "", "stdout":
	case "stderr":
		logWriter = os.Stderr
	default:
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		logWriter, closer = f, f
	}

	if _, stream := closer.(nopCloser); stream {
		// Remove the time key when writing to a stream
		handlerOptions.ReplaceAttr = func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return attr
		}
	}

	logger := slog.New(slog.NewTextHandler(logWriter, handlerOptions))
	slog.SetDefault(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func getLogLevel(logLevel string) slog.Level {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return level
}
