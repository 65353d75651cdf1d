package config

import (
	"strings"
	"time"

	"github.com/marmos91/framefs/pkg/adapter/fuse"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Provider sections get their keys filled in place
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMountDefaults(&cfg.Mount)
	applyFilesystemDefaults(&cfg.Filesystem)
	applyMetricsDefaults(&cfg.Metrics)
	applyServerDefaults(&cfg.Server)
	applyProvidersDefaults(&cfg.Providers)
	applyTreeDefaults(cfg.Tree)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyMountDefaults(cfg *fuse.Config) {
	if cfg.MountPoint == "" {
		cfg.MountPoint = "mnt"
	}
	if cfg.FSName == "" {
		cfg.FSName = "framefs"
	}
	if cfg.Subtype == "" {
		cfg.Subtype = "framefs"
	}
}

func applyFilesystemDefaults(cfg *FilesystemConfig) {
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0o755
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "memory"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyProvidersDefaults(cfg *ProvidersConfig) {
	if cfg.Framebuffer == nil {
		cfg.Framebuffer = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	setDefault(cfg.Framebuffer, "path", "/fb0")
	setDefault(cfg.Framebuffer, "width", 320)
	setDefault(cfg.Framebuffer, "height", 240)
	setDefault(cfg.Framebuffer, "bytes_per_pixel", 2)
	setDefault(cfg.Framebuffer, "panel", map[string]any{"type": "log"})

	setDefault(cfg.S3, "path", "/s3")
}

func applyTreeDefaults(nodes []NodeConfig) {
	for i := range nodes {
		if nodes[i].Type == "" {
			nodes[i].Type = "file"
		}
	}
}

// setDefault stores value under key unless a value is already present.
func setDefault(section map[string]any, key string, value any) {
	if _, ok := section[key]; !ok {
		section[key] = value
	}
}

// GetDefaultConfig returns a Config with all default values applied and a
// small sample tree.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Tree: []NodeConfig{
			{Path: "/README", Type: "file", Content: "Welcome to FrameFS.\n", Mode: 0o444},
			{Path: "/scratch", Type: "dir"},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
