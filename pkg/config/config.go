// Package config loads configuration for the url filter daemon.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"urlfilter/pkg/filtering"
)

const (
	defaultConfigPath = "/etc/urlfilter/urlfilter.conf"
	configEnvVar      = "URLFILTER_CONFIG"
)

// Dispatch modes.
const (
	DispatchStdout = "stdout"
	DispatchADB    = "adb"
)

// Config contains all runtime options required by the url filter.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Browsers  BrowsersConfig  `mapstructure:"browsers"`
	Settings  SettingsConfig  `mapstructure:"settings"`
	Detection DetectionConfig `mapstructure:"detection"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
}

// ServerConfig holds the event intake settings. An empty Listen reads events
// from stdin.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// MetricsConfig holds the Prometheus listener settings.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	RedirectLog string `mapstructure:"redirect_log"`
}

// BrowsersConfig holds browser registry settings.
type BrowsersConfig struct {
	ExtraFile string `mapstructure:"extra_file"`
}

// SettingsConfig identifies the settings screen guarded by the lock.
type SettingsConfig struct {
	AppID     string `mapstructure:"app_id"`
	LockLabel string `mapstructure:"lock_label"`
}

// DetectionConfig holds throttle settings.
type DetectionConfig struct {
	Window   time.Duration `mapstructure:"-"`
	Capacity int           `mapstructure:"capacity"`
}

// RemoteConfig holds the remote configuration source.
type RemoteConfig struct {
	Location       string        `mapstructure:"location"`
	UpdateInterval time.Duration `mapstructure:"-"`
	CacheDir       string        `mapstructure:"cache_dir"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Token          string        `mapstructure:"token"`
	Header         string        `mapstructure:"header"`
	Scheme         string        `mapstructure:"scheme"`
}

// DefaultsConfig holds the filter settings used until the remote
// configuration has been fetched.
type DefaultsConfig struct {
	RestrictedAddress        []string `mapstructure:"restricted_address"`
	RedirectTo               string   `mapstructure:"redirect_to"`
	LockAccessibilityService bool     `mapstructure:"lock_accessibility_service"`
}

// DispatchConfig selects how commands reach the device.
type DispatchConfig struct {
	Mode    string `mapstructure:"mode"`
	ADBPath string `mapstructure:"adb_path"`
	Serial  string `mapstructure:"serial"`
}

// FilterConfig converts the defaults section into a filter snapshot.
func (d DefaultsConfig) FilterConfig() filtering.FilterConfig {
	return filtering.FilterConfig{
		RestrictedAddress:        filtering.NormalizeRestricted(d.RestrictedAddress),
		RedirectTo:               strings.TrimSpace(d.RedirectTo),
		LockAccessibilityService: d.LockAccessibilityService,
	}
}

// ValidateLogLevel ensures the user-provided log level matches the supported set.
func ValidateLogLevel(level string) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(level)] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", level)
	}
	return nil
}

// ValidateAddress confirms that an address string has a valid host and TCP port.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if port == "" {
		return errors.New("invalid port")
	}
	if err != nil {
		return fmt.Errorf("invalid address format %s: %w", addr, err)
	}
	if ip := net.ParseIP(host); ip == nil {
		return fmt.Errorf("invalid IP address: %s", host)
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return fmt.Errorf("invalid port: %s", port)
	}
	return nil
}

// Setup loads the TOML configuration file and produces a Config instance.
// The file is taken from the "config" flag, then $URLFILTER_CONFIG, then the
// default path, which may be absent. Flags "log-level" and "dispatch"
// override the file when set.
func Setup(flags *pflag.FlagSet) (*Config, error) {
	configPath, explicit := defaultConfigPath, false
	if fromEnv := strings.TrimSpace(os.Getenv(configEnvVar)); fromEnv != "" {
		configPath, explicit = fromEnv, true
	}
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			configPath, explicit = f.Value.String(), true
		}
	}

	v := viper.New()
	if flags != nil {
		bindFlag(v, "logging.level", flags.Lookup("log-level"))
		bindFlag(v, "dispatch.mode", flags.Lookup("dispatch"))
	}
	return loadConfig(v, configPath, explicit)
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	_ = v.BindPFlag(key, flag)
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	return loadConfig(viper.New(), path, true)
}

func loadConfig(v *viper.Viper, configPath string, required bool) (*Config, error) {
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	setDefaults(v)

	if _, err := os.Stat(configPath); err == nil || required {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var err error
	cfg.Detection.Window, err = parseDuration(v.GetString("detection.window"))
	if err != nil {
		return nil, fmt.Errorf("invalid detection.window: %w", err)
	}
	cfg.Remote.UpdateInterval, err = parseDuration(v.GetString("remote.update_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote.update_interval: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := filtering.DefaultFilterConfig()
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "stdout")
	v.SetDefault("settings.app_id", "com.android.settings")
	v.SetDefault("settings.lock_label", filtering.DefaultLockLabel)
	v.SetDefault("detection.window", filtering.DefaultWindow.String())
	v.SetDefault("detection.capacity", filtering.DefaultMemoryCapacity)
	v.SetDefault("remote.update_interval", "60s")
	v.SetDefault("remote.cache_dir", "/var/cache/urlfilter")
	v.SetDefault("defaults.restricted_address", def.RestrictedAddress)
	v.SetDefault("defaults.redirect_to", def.RedirectTo)
	v.SetDefault("defaults.lock_accessibility_service", def.LockAccessibilityService)
	v.SetDefault("dispatch.mode", DispatchStdout)
	v.SetDefault("dispatch.adb_path", "adb")
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

func validateConfig(cfg *Config) error {
	if err := ValidateLogLevel(cfg.Logging.Level); err != nil {
		return err
	}

	if listen := cfg.Server.Listen; listen != "" {
		if err := ValidateAddress(listen); err != nil {
			return fmt.Errorf("invalid server.listen: %w", err)
		}
	}
	if listen := cfg.Metrics.Listen; listen != "" {
		if err := ValidateAddress(listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}
	}

	if cfg.Detection.Window < time.Millisecond {
		return errors.New("detection.window must be >= 1ms")
	}
	if cfg.Detection.Capacity <= 0 {
		return errors.New("detection.capacity must be > 0")
	}
	if cfg.Remote.UpdateInterval < 0 {
		return errors.New("remote.update_interval must be >= 0")
	}

	switch cfg.Dispatch.Mode {
	case DispatchStdout, DispatchADB:
	default:
		return fmt.Errorf("invalid dispatch.mode: %s (must be one of: stdout, adb)", cfg.Dispatch.Mode)
	}

	if extra := cfg.Browsers.ExtraFile; extra != "" {
		if _, err := os.Stat(extra); err != nil {
			return fmt.Errorf("browsers.extra_file not accessible: %w", err)
		}
	}

	return nil
}
