// Package intake decodes the newline delimited JSON event stream produced by
// the on-device observer.
package intake

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"urlfilter/pkg/filtering"
)

// maxLineSize bounds a single event line; node dumps can be large.
const maxLineSize = 1 << 20

// Decode reads events from r and calls fn for each one, in order. Malformed
// lines are logged and skipped. It returns when r is exhausted or ctx is done.
func Decode(ctx context.Context, r io.Reader, log *slog.Logger, fn func(filtering.Event)) error {
	if log == nil {
		log = slog.Default()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for lineNum := 1; scanner.Scan(); lineNum++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev filtering.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			log.Warn("skipping malformed event", "line", lineNum, "error", err)
			continue
		}
		if ev.AppID == "" {
			log.Warn("skipping event without app id", "line", lineNum)
			continue
		}
		fn(ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	return nil
}
