// Package browser holds the table of supported browsers and the UI element
// that shows each one's address bar.
package browser

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// DefaultSettingsApp is used when no settings application id is configured.
const DefaultSettingsApp = "com.android.settings"

// Config describes one supported browser.
type Config struct {
	AppID            string
	AddressElementID string
}

// Builtin lists the browsers supported out of the box.
var Builtin = []Config{
	{AppID: "com.android.chrome", AddressElementID: "com.android.chrome:id/url_bar"},
	{AppID: "org.mozilla.firefox", AddressElementID: "org.mozilla.firefox:id/mozac_browser_toolbar_url_view"},
	{AppID: "com.opera.browser", AddressElementID: "com.opera.browser:id/url_field"},
	{AppID: "com.opera.mini.native", AddressElementID: "com.opera.mini.native:id/url_field"},
	{AppID: "com.duckduckgo.mobile.android", AddressElementID: "com.duckduckgo.mobile.android:id/omnibarTextInput"},
	{AppID: "com.microsoft.emmx", AddressElementID: "com.microsoft.emmx:id/url_bar"},
	{AppID: "com.coloros.browser", AddressElementID: "com.coloros.browser:id/azt"},
	{AppID: "com.sec.android.app.sbrowser", AddressElementID: "com.sec.android.app.sbrowser:id/location_bar_edit_text"},
}

// Registry maps browser app ids to their configuration. It is not modified
// after construction.
type Registry struct {
	byApp map[string]Config
}

// NewRegistry builds a registry from the given entries. Later entries
// replace earlier ones with the same app id.
func NewRegistry(entries ...[]Config) *Registry {
	r := &Registry{byApp: make(map[string]Config)}
	for _, list := range entries {
		for _, cfg := range list {
			if cfg.AppID == "" || cfg.AddressElementID == "" {
				continue
			}
			r.byApp[cfg.AppID] = cfg
		}
	}
	return r
}

// Default returns a registry containing only the builtin browsers.
func Default() *Registry {
	return NewRegistry(Builtin)
}

// Lookup returns the configuration for appID.
func (r *Registry) Lookup(appID string) (Config, bool) {
	if r == nil {
		return Config{}, false
	}
	cfg, ok := r.byApp[appID]
	return cfg, ok
}

// Len returns the number of registered browsers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byApp)
}

// All returns the registered browsers sorted by app id.
func (r *Registry) All() []Config {
	if r == nil {
		return nil
	}
	out := make([]Config, 0, len(r.byApp))
	for _, cfg := range r.byApp {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out
}

// ObservedApps returns the app ids an accessibility service has to observe:
// every registered browser plus the settings application.
func (r *Registry) ObservedApps(settingsApp string) []string {
	if settingsApp == "" {
		settingsApp = DefaultSettingsApp
	}
	all := r.All()
	apps := make([]string, 0, len(all)+1)
	for _, cfg := range all {
		apps = append(apps, cfg.AppID)
	}
	return append(apps, settingsApp)
}

// LoadFile reads supplemental browser entries, one "app_id element_id" pair
// per line. Blank lines and lines starting with '#' are ignored.
func LoadFile(path string, log *slog.Logger) ([]Config, error) {
	if log == nil {
		log = slog.Default()
	}
	file, err := os.Open(path) // #nosec G304 -- path is provided via config.
	if err != nil {
		return nil, fmt.Errorf("open browsers file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Warn("failed to close browsers file", "error", err)
		}
	}()
	return parse(file, log)
}

func parse(r io.Reader, log *slog.Logger) ([]Config, error) {
	var configs []Config
	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			log.Warn("invalid browser entry", "line", lineNum, "entry", line)
			continue
		}
		if !strings.HasPrefix(fields[1], fields[0]+":id/") {
			log.Warn("address element does not belong to app", "line", lineNum, "app", fields[0], "element", fields[1])
		}
		configs = append(configs, Config{AppID: fields[0], AddressElementID: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan browsers file: %w", err)
	}
	return configs, nil
}
