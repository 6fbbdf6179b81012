// Package remoteconfig fetches the filter settings from a file or an HTTP
// endpoint and keeps the filtering store up to date.
package remoteconfig

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultHTTPTimeout = 20 * time.Second

// Source describes where the configuration document lives.
type Source struct {
	// Location is a file path or an http(s) URL.
	Location string
	Auth     AuthConfig
}

// AuthConfig defines optional authentication for an HTTP source.
type AuthConfig struct {
	Username string
	Password string
	Token    string
	Header   string
	Scheme   string
}

// IsURL reports whether the source is fetched over HTTP.
func (s Source) IsURL() bool {
	return isURL(s.Location)
}

// EnsureCacheDir creates the cache directory if missing. Returns an empty string on failure.
func EnsureCacheDir(cacheDir string, log *slog.Logger) string {
	if cacheDir == "" {
		return ""
	}
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		log.Error("failed to create cache dir, caching disabled", "dir", cacheDir, "error", err)
		return ""
	}
	return cacheDir
}

// fetch returns the raw document and whether it came from the cache.
func fetch(ctx context.Context, source Source, cacheDir string, log *slog.Logger) ([]byte, bool, error) {
	if !source.IsURL() {
		data, err := os.ReadFile(source.Location)
		if err != nil {
			return nil, false, fmt.Errorf("read file: %w", err)
		}
		return data, false, nil
	}

	data, err := download(ctx, source, log)
	if err == nil {
		if cacheDir != "" {
			if err := writeCache(cacheDir, source, data); err != nil {
				log.Warn("failed to write cache", "location", source.Location, "error", err)
			}
		}
		return data, false, nil
	}
	if cacheDir == "" {
		return nil, false, err
	}
	cached, cacheErr := readCache(cacheDir, source)
	if cacheErr != nil {
		return nil, false, fmt.Errorf("download failed: %w; cache error: %s", err, cacheErr.Error())
	}
	log.Warn("download failed, using cached config", "location", source.Location, "error", err)
	return cached, true, nil
}

func download(ctx context.Context, source Source, log *slog.Logger) ([]byte, error) {
	client := &http.Client{Timeout: defaultHTTPTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.Location, nil)
	if err != nil {
		return nil, err
	}
	applyAuth(req, source.Auth)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn("failed to close config response body", "error", err)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func applyAuth(req *http.Request, auth AuthConfig) {
	if auth.Username != "" || auth.Password != "" {
		req.SetBasicAuth(auth.Username, auth.Password)
	}
	if auth.Token != "" {
		header := auth.Header
		if header == "" {
			header = "Authorization"
		}
		scheme := auth.Scheme
		if scheme == "" {
			scheme = "Bearer"
		}
		req.Header.Set(header, strings.TrimSpace(scheme+" "+auth.Token))
	}
}

func writeCache(cacheDir string, source Source, data []byte) error {
	path := filepath.Join(cacheDir, cacheFileName(source))
	return os.WriteFile(path, data, 0o600)
}

func readCache(cacheDir string, source Source) ([]byte, error) {
	path := filepath.Join(cacheDir, cacheFileName(source))
	// #nosec G304 -- cache path is derived from configured cache directory.
	return os.ReadFile(path)
}

func cacheFileName(source Source) string {
	hash := sha256.Sum256([]byte(source.Location))
	return "remote-" + hex.EncodeToString(hash[:8]) + ".yaml"
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
