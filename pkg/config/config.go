package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/framefs/pkg/adapter/fuse"
	"github.com/spf13/viper"
)

// Config represents the complete FrameFS configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FRAMEFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Provider sections are kept as raw maps and decoded by the provider
// that owns them, so each provider defines its own configuration type.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Mount holds the FUSE mount options.
	// Uses the fuse.Config type directly to avoid duplication.
	Mount fuse.Config `mapstructure:"mount" yaml:"mount"`

	// Filesystem sets limits and default attributes of the namespace
	Filesystem FilesystemConfig `mapstructure:"filesystem" yaml:"filesystem"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Server contains process lifecycle settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Providers configures the optional content providers
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`

	// Tree lists entries created at mount time
	Tree []NodeConfig `mapstructure:"tree" yaml:"tree" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// FilesystemConfig sets namespace-wide limits and attributes.
type FilesystemConfig struct {
	// MaxSizeBytes caps the bytes held by in-memory files. 0 is unlimited.
	MaxSizeBytes int64 `mapstructure:"max_size_bytes" yaml:"max_size_bytes" validate:"gte=0"`

	// MaxFileSize caps a single file. 0 is unlimited.
	MaxFileSize int64 `mapstructure:"max_file_size" yaml:"max_file_size" validate:"gte=0"`

	// FileMode is the permission of seeded files without an explicit mode.
	FileMode uint32 `mapstructure:"file_mode" yaml:"file_mode" validate:"lte=511"` // 511 = 0777

	// DirMode is the permission of the root and of seeded directories.
	DirMode uint32 `mapstructure:"dir_mode" yaml:"dir_mode" validate:"lte=511"`

	// UID and GID own the root and the seeded entries. Unset means the
	// user running framefs.
	UID *uint32 `mapstructure:"uid" yaml:"uid,omitempty"`
	GID *uint32 `mapstructure:"gid" yaml:"gid,omitempty"`

	// DefaultProvider serves file content when nothing more specific does.
	// Valid values: memory, badger
	DefaultProvider string `mapstructure:"default_provider" yaml:"default_provider" validate:"required,oneof=memory badger"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// ServerConfig contains process lifecycle settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for unmount
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// ProvidersConfig holds the raw per-provider sections. Each is decoded
// with mapstructure into the provider's own type (see providers.go).
type ProvidersConfig struct {
	Framebuffer map[string]any `mapstructure:"framebuffer" yaml:"framebuffer"`
	Badger      map[string]any `mapstructure:"badger" yaml:"badger"`
	S3          map[string]any `mapstructure:"s3" yaml:"s3"`
}

// NodeConfig describes one seeded entry.
type NodeConfig struct {
	// Path is absolute. Missing parents are created as directories.
	Path string `mapstructure:"path" yaml:"path" validate:"required,startswith=/"`

	// Type is file or dir.
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=file dir"`

	// Content is the initial content of a file.
	Content string `mapstructure:"content" yaml:"content,omitempty"`

	// Mode overrides filesystem.file_mode or filesystem.dir_mode.
	Mode uint32 `mapstructure:"mode" yaml:"mode,omitempty" validate:"lte=511"`

	// Provider selects the content provider: for a file its own table,
	// for a directory the default of files created below it.
	// Valid values: "" (inherit), memory, badger
	Provider string `mapstructure:"provider" yaml:"provider,omitempty" validate:"omitempty,oneof=memory badger"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FRAMEFS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	// Example: FRAMEFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("FRAMEFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"mount.point", "mount.read_only", "mount.allow_other", "mount.debug",
		"metrics.enabled", "metrics.port",
		"filesystem.max_size_bytes", "filesystem.default_provider",
		"server.shutdown_timeout",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/framefs/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist falls back to defaults too.
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir uses XDG_CONFIG_HOME if set, otherwise ~/.config, or the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "framefs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "framefs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
