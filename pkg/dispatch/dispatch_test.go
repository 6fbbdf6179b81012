package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestWriterEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.Navigate(context.Background(), Navigate{URL: "https://example.com", AppID: "com.android.chrome"}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := w.SettingsRoot(context.Background()); err != nil {
		t.Fatalf("SettingsRoot: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if lines[0] != `{"action":"navigate","url":"https://example.com","app_id":"com.android.chrome"}` {
		t.Errorf("navigate line = %s", lines[0])
	}
	if lines[1] != `{"action":"settings_root"}` {
		t.Errorf("settings line = %s", lines[1])
	}
}

type fakeRun struct {
	calls  [][]string
	output string
	err    error
}

func (f *fakeRun) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return []byte(f.output), f.err
}

func newTestADB(f *fakeRun, serial string) *ADB {
	a := NewADB("/opt/adb", serial, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.run = f.run
	return a
}

func TestADBNavigateArgs(t *testing.T) {
	f := &fakeRun{output: "Starting: Intent { act=android.intent.action.VIEW }"}
	a := newTestADB(f, "emulator-5554")

	if err := a.Navigate(context.Background(), Navigate{URL: "https://example.com", AppID: "org.mozilla.firefox"}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	got := strings.Join(f.calls[0], " ")
	want := "/opt/adb -s emulator-5554 shell am start -a android.intent.action.VIEW -d https://example.com -f 0x34008000 -p org.mozilla.firefox --es com.android.browser.application_id org.mozilla.firefox"
	if got != want {
		t.Errorf("command = %q\nwant      %q", got, want)
	}
}

func TestADBNavigateUntargeted(t *testing.T) {
	f := &fakeRun{}
	a := newTestADB(f, "")

	if err := a.Navigate(context.Background(), Navigate{URL: "https://example.com"}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	got := strings.Join(f.calls[0], " ")
	if strings.Contains(got, " -p ") || strings.Contains(got, " -s ") {
		t.Errorf("untargeted command should have no package or serial: %q", got)
	}
}

func TestADBAppUnavailable(t *testing.T) {
	f := &fakeRun{output: "Error: Activity not started, unable to resolve Intent { act=android.intent.action.VIEW }"}
	a := newTestADB(f, "")

	err := a.Navigate(context.Background(), Navigate{URL: "https://example.com", AppID: "com.opera.browser"})
	if !errors.Is(err, ErrAppUnavailable) {
		t.Fatalf("expected ErrAppUnavailable, got %v", err)
	}
}

func TestADBSettingsRootFailure(t *testing.T) {
	f := &fakeRun{output: "device offline", err: errors.New("exit status 1")}
	a := newTestADB(f, "")

	err := a.SettingsRoot(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrAppUnavailable) {
		t.Error("settings failure should not be reported as app unavailable")
	}
	if !strings.Contains(strings.Join(f.calls[0], " "), "android.settings.SETTINGS") {
		t.Errorf("unexpected command %v", f.calls[0])
	}
}
