// Package config provides configuration management for assetmanifest.
//
// Configuration is loaded from four sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (ASSETMANIFEST_ prefix)
//  3. Config file (.assetmanifest.yaml)
//  4. Built-in defaults
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Manifest defaults.
const (
	DefaultAssetsDir  = "wp-content"
	DefaultOutputName = "manifest.js"
	DefaultVariable   = "window.ASSETS_MANIFEST"
	DefaultDebounce   = 200 * time.Millisecond
)

// Config represents the global configuration for assetmanifest.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet"`

	// Root is the project root. Empty means the parent of the directory
	// holding the executable.
	Root string `mapstructure:"root" json:"root"`

	// AssetsDir is the directory scanned for images. Relative paths are
	// resolved against Root.
	AssetsDir string `mapstructure:"assets-dir" json:"assetsDir"`

	// Output is the manifest script path. Empty means manifest.js inside
	// AssetsDir; relative paths are resolved against Root.
	Output string `mapstructure:"output" json:"output"`

	// Variable is the global the manifest is assigned to.
	Variable string `mapstructure:"variable" json:"variable"`

	// Debounce is the quiet period before a watch-mode regeneration.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce"`

	// FollowSymlinks makes the scanner descend into symlinked directories
	// and include symlinked files.
	FollowSymlinks bool `mapstructure:"follow-symlinks" json:"followSymlinks"`

	// ConfigFile is the resolved path to the config file used.
	// Set by Load, never read from the config itself.
	ConfigFile string `mapstructure:"-" json:"-"`
}

// Paths holds the absolute locations derived from a Config.
type Paths struct {
	ProjectRoot string
	AssetsDir   string
	OutputPath  string
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:  LogLevelInfo,
		LogFormat: LogFormatText,
		AssetsDir: DefaultAssetsDir,
		Variable:  DefaultVariable,
		Debounce:  DefaultDebounce,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	if c.Debounce <= 0 {
		return fmt.Errorf("invalid debounce %s: must be positive", c.Debounce)
	}

	if strings.TrimSpace(c.Variable) == "" {
		return errors.New("invalid variable: must not be empty")
	}

	if strings.TrimSpace(c.AssetsDir) == "" {
		return errors.New("invalid assets dir: must not be empty")
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// ResolvePaths turns the configured locations into absolute paths.
func (c *Config) ResolvePaths() (Paths, error) {
	root := c.Root
	if root == "" {
		def, err := DefaultProjectRoot()
		if err != nil {
			return Paths{}, err
		}

		root = def
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return Paths{}, fmt.Errorf("resolving project root %q: %w", c.Root, err)
	}

	assets := c.AssetsDir
	if !filepath.IsAbs(assets) {
		assets = filepath.Join(root, assets)
	}

	out := c.Output
	switch {
	case out == "":
		out = filepath.Join(assets, DefaultOutputName)
	case !filepath.IsAbs(out):
		out = filepath.Join(root, out)
	}

	return Paths{
		ProjectRoot: root,
		AssetsDir:   filepath.Clean(assets),
		OutputPath:  filepath.Clean(out),
	}, nil
}

// DefaultProjectRoot returns the parent of the directory that contains the
// running executable, following symlinks to the binary.
func DefaultProjectRoot() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}

	if resolved, evalErr := filepath.EvalSymlinks(exe); evalErr == nil {
		exe = resolved
	}

	return filepath.Dir(filepath.Dir(exe)), nil
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", LogLevelInfo)
	v.SetDefault("log-format", LogFormatText)
	v.SetDefault("no-color", false)
	v.SetDefault("quiet", false)
	v.SetDefault("root", "")
	v.SetDefault("assets-dir", DefaultAssetsDir)
	v.SetDefault("output", "")
	v.SetDefault("variable", DefaultVariable)
	v.SetDefault("debounce", DefaultDebounce)
	v.SetDefault("follow-symlinks", false)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("ASSETMANIFEST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	v.SetConfigName(".assetmanifest")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "assetmanifest"))
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file found → perfectly fine in auto-discovery.
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
