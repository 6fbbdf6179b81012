package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"urlfilter/pkg/config"
	"urlfilter/pkg/version"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	content := "[remote]\ncache_dir = \"" + filepath.Join(dir, "cache") + "\"\n" + extra
	path := filepath.Join(dir, "urlfilter.conf")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

type command struct {
	Action string `json:"action"`
	URL    string `json:"url"`
	AppID  string `json:"app_id"`
}

func decodeCommands(t *testing.T, out string) []command {
	t.Helper()
	var cmds []command
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var c command
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			t.Fatalf("bad command line %q: %v", line, err)
		}
		cmds = append(cmds, c)
	}
	return cmds
}

func TestRunStdinPipeline(t *testing.T) {
	cfg := testConfig(t, "")

	events := strings.Join([]string{
		// restricted search in chrome
		`{"app_id":"com.android.chrome","change_types":3,"event_time":5000,"nodes":[{"view_id":"com.android.chrome:id/url_bar","text":"https://www.google.com/search?q=x"}]}`,
		// same address within the throttle window
		`{"app_id":"com.android.chrome","change_types":3,"event_time":5400,"nodes":[{"view_id":"com.android.chrome:id/url_bar","text":"https://www.google.com/search?q=x"}]}`,
		`not json`,
		// allowed address
		`{"app_id":"com.android.chrome","change_types":3,"event_time":9000,"nodes":[{"view_id":"com.android.chrome:id/url_bar","text":"https://go.dev/"}]}`,
		// accessibility settings screen
		`{"app_id":"com.android.settings","change_types":0,"event_time":9100,"text":["ユーザー補助"]}`,
		// unsupported app
		`{"app_id":"com.example.notes","change_types":3,"event_time":9200,"address":"https://www.google.com/search?q=y"}`,
	}, "\n")

	var out bytes.Buffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(context.Background(), cfg, discardLogger(), strings.NewReader(events), &out, nil)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after the event stream ended")
	}

	cmds := decodeCommands(t, out.String())
	want := []command{
		{Action: "navigate", URL: "https://example.com/", AppID: "com.android.chrome"},
		{Action: "settings_root"},
	}
	if len(cmds) != len(want) {
		t.Fatalf("commands = %+v, want %+v", cmds, want)
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Errorf("command %d = %+v, want %+v", i, cmds[i], want[i])
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, "[server]\nlisten = \"127.0.0.1:0\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, discardLogger(), strings.NewReader(""), io.Discard, make(chan os.Signal))
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRunRejectsMissingBrowsersFile(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Browsers.ExtraFile = filepath.Join(t.TempDir(), "missing.txt")
	if err := run(context.Background(), cfg, discardLogger(), strings.NewReader(""), io.Discard, nil); err == nil {
		t.Error("expected error for missing browsers file")
	}
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != version.URLFilterVersion {
		t.Errorf("version output = %q", out.String())
	}
}

func TestBrowsersCmd(t *testing.T) {
	t.Setenv("URLFILTER_CONFIG", "")
	dir := t.TempDir()
	extra := filepath.Join(dir, "browsers.txt")
	if err := os.WriteFile(extra, []byte("com.example.browser com.example.browser:id/address\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "urlfilter.conf")
	if err := os.WriteFile(path, []byte("[browsers]\nextra_file = \""+extra+"\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"browsers", "--config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"com.android.chrome com.android.chrome:id/url_bar",
		"com.example.browser com.example.browser:id/address",
		"com.android.settings",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("browsers output missing %q:\n%s", want, got)
		}
	}
}
