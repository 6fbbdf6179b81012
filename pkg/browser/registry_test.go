package browser

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultRegistryLookup(t *testing.T) {
	reg := Default()
	if reg.Len() != len(Builtin) {
		t.Fatalf("Len() = %d, want %d", reg.Len(), len(Builtin))
	}

	cfg, ok := reg.Lookup("com.android.chrome")
	if !ok {
		t.Fatal("expected chrome to be registered")
	}
	if cfg.AddressElementID != "com.android.chrome:id/url_bar" {
		t.Errorf("AddressElementID = %q", cfg.AddressElementID)
	}

	if _, ok := reg.Lookup("com.example.notes"); ok {
		t.Error("did not expect com.example.notes to be registered")
	}
}

func TestNilRegistry(t *testing.T) {
	var reg *Registry
	if _, ok := reg.Lookup("com.android.chrome"); ok {
		t.Error("nil registry should not match")
	}
	if reg.Len() != 0 {
		t.Error("nil registry should be empty")
	}
}

func TestObservedAppsIncludesSettings(t *testing.T) {
	reg := NewRegistry([]Config{{AppID: "b.browser", AddressElementID: "b.browser:id/url"}, {AppID: "a.browser", AddressElementID: "a.browser:id/url"}})

	got := reg.ObservedApps("")
	want := []string{"a.browser", "b.browser", DefaultSettingsApp}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ObservedApps() = %v, want %v", got, want)
	}

	got = reg.ObservedApps("com.vendor.settings")
	if got[len(got)-1] != "com.vendor.settings" {
		t.Errorf("last observed app = %q, want com.vendor.settings", got[len(got)-1])
	}
}

func TestLoadFileMergesWithBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browsers.txt")
	content := strings.Join([]string{
		"# extra browsers",
		"com.brave.browser com.brave.browser:id/url_bar",
		"",
		"broken-line",
		"com.android.chrome com.android.chrome:id/search_box",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	extra, err := LoadFile(path, logger)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(extra) != 2 {
		t.Fatalf("got %d entries, want 2", len(extra))
	}

	reg := NewRegistry(Builtin, extra)
	if _, ok := reg.Lookup("com.brave.browser"); !ok {
		t.Error("expected brave to be registered")
	}
	cfg, _ := reg.Lookup("com.android.chrome")
	if cfg.AddressElementID != "com.android.chrome:id/search_box" {
		t.Errorf("supplemental entry should override builtin, got %q", cfg.AddressElementID)
	}
}

func TestLoadFileMissing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.txt"), logger); err == nil {
		t.Error("expected error for missing file")
	}
}
