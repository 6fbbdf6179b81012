package filtering

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

type redirectLogger struct {
	file *os.File
	mu   sync.Mutex
}

func newRedirectLogger(path string, log *slog.Logger) *redirectLogger {
	if path == "" {
		return nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path provided via config.
	if err != nil {
		log.Error("failed to open redirect log file", "error", err)
		return nil
	}
	return &redirectLogger{file: file}
}

func (r *redirectLogger) Log(d Decision) {
	if r == nil || r.file == nil {
		return
	}
	line := fmt.Sprintf("%s app=%s entry=%q url=%q target=%s fallback=%t\n",
		time.Now().UTC().Format(time.RFC3339),
		d.AppID,
		d.Entry,
		d.URL,
		d.Target,
		d.Fallback,
	)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.file.WriteString(line)
}

func (r *redirectLogger) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
