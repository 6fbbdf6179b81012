package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	actionView     = "android.intent.action.VIEW"
	actionSettings = "android.settings.SETTINGS"

	// extraApplicationID lets the browser reuse the tab opened by this app.
	extraApplicationID = "com.android.browser.application_id"

	// FLAG_ACTIVITY_CLEAR_TOP | CLEAR_TASK | NEW_TASK | SINGLE_TOP
	activityFlags = "0x34008000"

	defaultADBTimeout = 10 * time.Second
)

// runFunc executes adb with args and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// ADB dispatches commands with "adb shell am start".
type ADB struct {
	path    string
	serial  string
	timeout time.Duration
	log     *slog.Logger
	run     runFunc
}

// NewADB returns an ADB dispatcher. An empty path means "adb" from PATH; an
// empty serial targets the only attached device.
func NewADB(path, serial string, log *slog.Logger) *ADB {
	if path == "" {
		path = "adb"
	}
	if log == nil {
		log = slog.Default()
	}
	return &ADB{
		path:    path,
		serial:  serial,
		timeout: defaultADBTimeout,
		log:     log,
		run:     runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() // #nosec G204 -- adb path comes from config.
}

// Navigate opens cmd.URL, restricted to cmd.AppID when set.
func (a *ADB) Navigate(ctx context.Context, cmd Navigate) error {
	args := []string{"-a", actionView, "-d", cmd.URL, "-f", activityFlags}
	if cmd.AppID != "" {
		args = append(args, "-p", cmd.AppID, "--es", extraApplicationID, cmd.AppID)
	}
	err := a.start(ctx, args)
	if err != nil && cmd.AppID != "" && strings.Contains(err.Error(), "unable to resolve Intent") {
		return fmt.Errorf("%s: %w", cmd.AppID, ErrAppUnavailable)
	}
	return err
}

// SettingsRoot opens the top level settings screen.
func (a *ADB) SettingsRoot(ctx context.Context) error {
	return a.start(ctx, []string{"-a", actionSettings, "-f", activityFlags})
}

func (a *ADB) start(ctx context.Context, intentArgs []string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	args := make([]string, 0, len(intentArgs)+5)
	if a.serial != "" {
		args = append(args, "-s", a.serial)
	}
	args = append(args, "shell", "am", "start")
	args = append(args, intentArgs...)

	a.log.Debug("running adb", "args", strings.Join(args, " "))
	out, err := a.run(ctx, a.path, args...)
	output := strings.TrimSpace(string(out))
	if err != nil {
		return fmt.Errorf("adb am start: %w: %s", err, output)
	}
	// am start exits 0 even when the intent cannot be resolved.
	if strings.Contains(output, "Error:") {
		return fmt.Errorf("adb am start: %s", output)
	}
	return nil
}
