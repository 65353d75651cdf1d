package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/framefs/internal/logger"
	"github.com/marmos91/framefs/internal/ratelimiter"
	"github.com/marmos91/framefs/pkg/vfs"
)

// Config is the mirror section of the configuration file.
type Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket" validate:"required"`
	Region string `mapstructure:"region" yaml:"region" validate:"required"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`

	// Endpoint overrides the AWS endpoint (MinIO, Localstack, ...). Setting
	// it also switches to path-style addressing.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Static credentials. When empty the default AWS credential chain is used.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`

	// MaxRetries bounds attempts per request. Zero selects 10.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`

	// RequestsPerSecond caps reads sent to the bucket. Zero is unlimited.
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the number of reads allowed above the sustained rate.
	Burst uint `mapstructure:"burst" yaml:"burst"`
}

// NewLimiter returns the read throttle described by cfg, nil when
// unlimited.
func (cfg Config) NewLimiter() *ratelimiter.RateLimiter {
	if cfg.RequestsPerSecond == 0 {
		return nil
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = cfg.RequestsPerSecond
	}
	return ratelimiter.New(cfg.RequestsPerSecond, burst)
}

// NewClient builds an S3 client from cfg.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Attach creates directory name under parent, restricts its files to
// read-only operations and fills it from the mirror.
func (m *Mirror) Attach(ctx context.Context, parent *vfs.Directory, name string) (*vfs.Entry, error) {
	e, err := parent.CreateDirectory(name)
	if err != nil {
		return nil, fmt.Errorf("create mirror directory: %w", err)
	}
	dir, err := e.Dir()
	if err != nil {
		return nil, err
	}

	var inner vfs.FileOps
	if sb := parent.Superblock(); sb != nil {
		inner = sb.Defaults().File
	}
	dir.SetFileDefault(vfs.ReadOnlyFileOps{Inner: inner})

	if _, err := m.Populate(ctx, dir); err != nil {
		return e, err
	}

	logger.Debug("S3 mirror attached at %s", e.Path())
	return e, nil
}
