// Package s3 mirrors an S3 bucket prefix into the namespace as read-only
// files.
//
// Populate lists the prefix once and creates a directory tree matching the
// object keys. File content is never cached: every read becomes a ranged
// GetObject against the object recorded for that file.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/framefs/internal/logger"
	"github.com/marmos91/framefs/internal/ratelimiter"
	"github.com/marmos91/framefs/pkg/metrics"
	"github.com/marmos91/framefs/pkg/vfs"
)

// Client is the subset of the S3 API the mirror uses. *s3.Client
// satisfies it.
type Client interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Mirror serves files backed by objects of one bucket.
type Mirror struct {
	client  Client
	bucket  string
	prefix  string
	metrics metrics.S3Metrics
	limiter *ratelimiter.RateLimiter
}

// MirrorConfig configures NewMirror.
type MirrorConfig struct {
	Client Client
	Bucket string

	// Prefix restricts the mirror to keys below it. A trailing slash is
	// added when missing.
	Prefix string

	// Metrics is optional.
	Metrics metrics.S3Metrics

	// Limiter throttles GetObject and HeadObject. Nil means unlimited.
	Limiter *ratelimiter.RateLimiter
}

// NewMirror validates cfg and returns a mirror.
func NewMirror(cfg MirrorConfig) (*Mirror, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 mirror: client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 mirror: bucket is required")
	}

	prefix := strings.TrimPrefix(cfg.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopS3Metrics()
	}

	return &Mirror{
		client:  cfg.Client,
		bucket:  cfg.Bucket,
		prefix:  prefix,
		metrics: m,
		limiter: cfg.Limiter,
	}, nil
}

// object is the per-file private data.
type object struct {
	key string
}

// Populate lists the mirrored prefix and inserts one read-only file per
// object below dir, creating intermediate directories as needed. Keys
// ending in "/" (folder markers) and keys with invalid path segments are
// skipped. Returns the number of files created.
func (m *Mirror) Populate(ctx context.Context, dir *vfs.Directory) (count int, err error) {
	start := time.Now()
	defer func() {
		m.metrics.ObserveOperation("ListObjectsV2", time.Since(start), err)
		m.metrics.SetMirroredObjects(count)
	}()

	paginator := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.bucket),
		Prefix: aws.String(m.prefix),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return count, fmt.Errorf("failed to list s3://%s/%s: %w", m.bucket, m.prefix, err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			created, err := m.insert(dir, obj)
			if err != nil {
				return count, err
			}
			if created {
				count++
			}
		}
	}

	logger.Info("S3 mirror populated: bucket=%s, prefix=%s, objects=%d", m.bucket, m.prefix, count)
	return count, nil
}

func (m *Mirror) insert(root *vfs.Directory, obj types.Object) (bool, error) {
	key := *obj.Key
	rel := strings.TrimPrefix(key, m.prefix)
	if rel == "" || strings.HasSuffix(rel, "/") {
		return false, nil
	}

	segments := strings.Split(rel, "/")
	for _, seg := range segments {
		if vfs.ValidateName(seg) != nil {
			logger.Warn("Skipping S3 key with unusable path segment: %q", key)
			return false, nil
		}
	}

	dir := root
	for _, seg := range segments[:len(segments)-1] {
		next, err := subdirectory(dir, seg)
		if err != nil {
			if vfs.IsCode(err, vfs.ErrNotADirectory) {
				logger.Warn("Skipping S3 key %q: %s is a file", key, seg)
				return false, nil
			}
			return false, err
		}
		dir = next
	}

	name := segments[len(segments)-1]
	e := vfs.NewFileWithMode(name, 0o444)
	f, _ := e.File()
	f.SetOps(&FileOps{mirror: m})
	f.SetPrivate(object{key: key})
	f.SetSize(aws.ToInt64(obj.Size))
	if obj.LastModified != nil {
		e.SetTimes(*obj.LastModified, *obj.LastModified)
	}

	if err := dir.Add(e); err != nil {
		if vfs.IsCode(err, vfs.ErrNameCollision) {
			logger.Warn("Skipping S3 key %q: name already taken", key)
			return false, nil
		}
		return false, fmt.Errorf("mirror %s: %w", key, err)
	}
	return true, nil
}

// subdirectory returns child name of dir, creating it when missing.
func subdirectory(dir *vfs.Directory, name string) (*vfs.Directory, error) {
	e, err := dir.Lookup(name)
	if vfs.IsCode(err, vfs.ErrNotFound) {
		e, err = dir.CreateDirectory(name)
		if vfs.IsCode(err, vfs.ErrNameCollision) {
			e, err = dir.Lookup(name)
		}
	}
	if err != nil {
		return nil, err
	}
	return e.Dir()
}

// readAt fetches up to len(p) bytes of key starting at off.
func (m *Mirror) readAt(ctx context.Context, key string, p []byte, off int64) (n int, err error) {
	start := time.Now()
	defer func() {
		m.metrics.ObserveOperation("GetObject", time.Since(start), err)
		if n > 0 {
			m.metrics.RecordBytes("GetObject", int64(n))
		}
	}()

	if err := m.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	// S3 ranges are inclusive.
	end := off + int64(len(p)) - 1
	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = result.Body.Close() }()

	n, err = io.ReadFull(result.Body, p)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return n, nil
	}
	return n, err
}

// size asks S3 for the current object length.
func (m *Mirror) size(ctx context.Context, key string) (size int64, err error) {
	start := time.Now()
	defer func() { m.metrics.ObserveOperation("HeadObject", time.Since(start), err) }()

	if err := m.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	result, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(result.ContentLength), nil
}

// mapError converts S3 failures into filesystem errors.
func mapError(p string, err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return vfs.Errorf(vfs.ErrNotFound, p, "object no longer exists")
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return vfs.Errorf(vfs.ErrNotFound, p, "object no longer exists")
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidRange":
			return nil
		case "AccessDenied":
			return vfs.Errorf(vfs.ErrPermissionDenied, p, "s3: %s", apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("s3 read %s: %w", p, err)
}
