package config

import (
	"fmt"
	"path"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Mount.MountPoint == "" {
		return fmt.Errorf("mount.point: a mount point is required")
	}

	badgerCfg, err := cfg.Providers.BadgerSection()
	if err != nil {
		return err
	}
	if cfg.Filesystem.DefaultProvider == "badger" && !badgerCfg.Enabled {
		return fmt.Errorf("filesystem.default_provider: badger provider is not enabled")
	}

	fbCfg, err := cfg.Providers.FramebufferSection()
	if err != nil {
		return err
	}
	if fbCfg.Enabled {
		if err := validate.Struct(fbCfg); err != nil {
			return fmt.Errorf("providers.framebuffer: %w", formatValidationError(err))
		}
	}

	s3Cfg, err := cfg.Providers.S3Section()
	if err != nil {
		return err
	}
	if s3Cfg.Enabled {
		if err := validate.Struct(s3Cfg); err != nil {
			return fmt.Errorf("providers.s3: %w", formatValidationError(err))
		}
	}

	seen := make(map[string]bool)
	for i, node := range cfg.Tree {
		clean := path.Clean(node.Path)
		if clean == "/" {
			return fmt.Errorf("tree[%d]: the root cannot be seeded", i)
		}
		if seen[clean] {
			return fmt.Errorf("tree[%d]: duplicate path %q", i, node.Path)
		}
		seen[clean] = true

		if node.Type == "dir" && node.Content != "" {
			return fmt.Errorf("tree[%d]: directory %q cannot have content", i, node.Path)
		}
		if node.Provider == "badger" && !badgerCfg.Enabled {
			return fmt.Errorf("tree[%d]: badger provider is not enabled", i)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
