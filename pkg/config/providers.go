package config

import (
	"fmt"

	contentBadger "github.com/marmos91/framefs/pkg/content/badger"
	contentS3 "github.com/marmos91/framefs/pkg/content/s3"
	"github.com/marmos91/framefs/pkg/device/framebuffer"
	"github.com/mitchellh/mapstructure"
)

// FramebufferConfig is the providers.framebuffer section. Sections are
// only validated when enabled.
type FramebufferConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Path is the device directory, created with its parents.
	Path string `mapstructure:"path" validate:"required,startswith=/"`

	framebuffer.Geometry `mapstructure:",squash"`

	Panel PanelConfig `mapstructure:"panel"`
}

// PanelConfig selects where flushed frame regions go.
type PanelConfig struct {
	// Type is none, log or file.
	Type string `mapstructure:"type" validate:"omitempty,oneof=none log file"`

	// Path is the output file or device node for Type file.
	Path string `mapstructure:"path" validate:"required_if=Type file"`
}

// BadgerConfig is the providers.badger section.
type BadgerConfig struct {
	Enabled bool `mapstructure:"enabled"`

	contentBadger.Config `mapstructure:",squash"`
}

// S3Config is the providers.s3 section.
type S3Config struct {
	Enabled bool `mapstructure:"enabled"`

	// Path is the mirror directory, created with its parents.
	Path string `mapstructure:"path" validate:"omitempty,startswith=/"`

	contentS3.Config `mapstructure:",squash"`
}

func decodeSection(name string, raw map[string]any, out any) error {
	if err := mapstructure.Decode(raw, out); err != nil {
		return fmt.Errorf("invalid %s config: %w", name, err)
	}
	return nil
}

// FramebufferSection decodes providers.framebuffer.
func (p ProvidersConfig) FramebufferSection() (FramebufferConfig, error) {
	var cfg FramebufferConfig
	err := decodeSection("framebuffer", p.Framebuffer, &cfg)
	return cfg, err
}

// BadgerSection decodes providers.badger.
func (p ProvidersConfig) BadgerSection() (BadgerConfig, error) {
	var cfg BadgerConfig
	err := decodeSection("badger", p.Badger, &cfg)
	return cfg, err
}

// S3Section decodes providers.s3.
func (p ProvidersConfig) S3Section() (S3Config, error) {
	var cfg S3Config
	err := decodeSection("s3", p.S3, &cfg)
	return cfg, err
}
