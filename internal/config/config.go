package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/breki/kozmotic/internal/apperr"
	"github.com/breki/kozmotic/internal/platform"
)

// EnvPrefix is prepended to every environment override (KOZMOTIC_VOLUME etc.)
const EnvPrefix = "KOZMOTIC"

// Valid output formats and desktop methods
var (
	Formats        = []string{"json", "yaml", "toml", "human"}
	DesktopMethods = []string{"auto", "beeep", "osc9"}
)

// Config represents the tool configuration
type Config struct {
	Format       string        `mapstructure:"format"`
	Volume       float64       `mapstructure:"volume"`        // 0.0-1.0, default 1.0
	Repeat       int           `mapstructure:"repeat"`        // default 1
	Interval     time.Duration `mapstructure:"interval"`      // pause between repeats
	Timeout      time.Duration `mapstructure:"timeout"`       // 0 = no limit
	Device       string        `mapstructure:"device"`        // empty = system default
	ToneDuration time.Duration `mapstructure:"tone_duration"` // synthesized tone length
	Verbose      bool          `mapstructure:"verbose"`
	LogFile      string        `mapstructure:"log_file"`
	Desktop      DesktopConfig `mapstructure:"desktop"`
}

// DesktopConfig represents desktop banner settings
type DesktopConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"`   // "auto", "beeep", "osc9" (default: "auto")
	AppIcon string `mapstructure:"app_icon"` // Path to app icon
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Format:       "json",
		Volume:       1.0,
		Repeat:       1,
		ToneDuration: 500 * time.Millisecond,
		Desktop: DesktopConfig{
			Enabled: true,
			Method:  "auto",
		},
	}
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "kozmotic", "config.toml")
}

// NewViper returns a viper instance carrying the defaults and the
// KOZMOTIC_ environment binding. Callers may bind command-line flags to it
// before calling LoadViper.
func NewViper() *viper.Viper {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("format", d.Format)
	v.SetDefault("volume", d.Volume)
	v.SetDefault("repeat", d.Repeat)
	v.SetDefault("interval", d.Interval)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("device", d.Device)
	v.SetDefault("tone_duration", d.ToneDuration)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("desktop.enabled", d.Desktop.Enabled)
	v.SetDefault("desktop.method", d.Desktop.Method)
	v.SetDefault("desktop.app_icon", d.Desktop.AppIcon)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load loads configuration from a TOML file, environment and defaults.
// An empty path means ConfigPath(). If the file doesn't exist, defaults
// (plus environment overrides) are returned.
func Load(path string) (*Config, error) {
	return LoadViper(NewViper(), path)
}

// LoadViper is Load on a caller-prepared viper instance
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	path = platform.ExpandPath(path)

	if path != "" && platform.IsRegularFile(path) {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "failed to parse config file %s", path).
				With("path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgument, err, "invalid configuration").
			With("path", path)
	}

	// Expand environment variables and ~ in paths
	cfg.LogFile = platform.ExpandPath(cfg.LogFile)
	cfg.Desktop.AppIcon = platform.ExpandPath(cfg.Desktop.AppIcon)

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills in missing fields with default values. Numeric
// playback settings are left alone: 0 volume is valid and 0 repeat must
// reach validation.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Format == "" {
		c.Format = d.Format
	}
	c.Format = strings.ToLower(c.Format)
	if c.Desktop.Method == "" {
		c.Desktop.Method = d.Desktop.Method
	}
}

// Validate validates the configuration. Playback parameters (volume,
// repeat, interval, timeout) are checked by the playback orchestrator so
// that source selection errors are reported first.
func (c *Config) Validate() error {
	if !contains(Formats, c.Format) {
		return apperr.New(apperr.InvalidArgument,
			"invalid output format: %s (must be one of: %s)", c.Format, strings.Join(Formats, ", ")).
			With("format", c.Format)
	}

	if !contains(DesktopMethods, c.Desktop.Method) {
		return apperr.New(apperr.InvalidArgument,
			"invalid desktop method: %s (must be one of: %s)", c.Desktop.Method, strings.Join(DesktopMethods, ", ")).
			With("method", c.Desktop.Method)
	}

	return nil
}

// IsDesktopEnabled returns true if desktop banners are enabled
func (c *Config) IsDesktopEnabled() bool {
	return c.Desktop.Enabled
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
