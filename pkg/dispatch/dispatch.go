// Package dispatch delivers navigation commands to the device.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrAppUnavailable is returned when the requested target application cannot
// handle a navigation, usually because it is not installed.
var ErrAppUnavailable = errors.New("target app unavailable")

// Navigate asks the device to open URL. An empty AppID lets the system pick
// any handler.
type Navigate struct {
	URL   string
	AppID string
}

// Dispatcher sends commands to the device.
type Dispatcher interface {
	Navigate(ctx context.Context, cmd Navigate) error
	SettingsRoot(ctx context.Context) error
}

const (
	actionNavigate     = "navigate"
	actionSettingsRoot = "settings_root"
)

type line struct {
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
	AppID  string `json:"app_id,omitempty"`
}

// Writer emits commands as JSON lines for an external executor.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Navigate writes a navigate command.
func (w *Writer) Navigate(_ context.Context, cmd Navigate) error {
	return w.write(line{Action: actionNavigate, URL: cmd.URL, AppID: cmd.AppID})
}

// SettingsRoot writes a settings_root command.
func (w *Writer) SettingsRoot(_ context.Context) error {
	return w.write(line{Action: actionSettingsRoot})
}

func (w *Writer) write(l line) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(l); err != nil {
		return fmt.Errorf("write %s command: %w", l.Action, err)
	}
	return nil
}
