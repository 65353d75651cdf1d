// Package fuse serves a vfs.Filesystem to the host kernel through FUSE.
package fuse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/marmos91/framefs/internal/logger"
	"github.com/marmos91/framefs/pkg/vfs"
)

// Config holds the mount options.
type Config struct {
	// MountPoint overrides the superblock mount point. Relative paths are
	// resolved against the filesystem's working directory.
	MountPoint string `mapstructure:"point" yaml:"point"`

	// FSName is the source name shown by mount(8).
	FSName string `mapstructure:"fs_name" yaml:"fs_name"`

	// Subtype is the filesystem subtype ("fuse.<subtype>").
	Subtype string `mapstructure:"subtype" yaml:"subtype"`

	ReadOnly   bool `mapstructure:"read_only" yaml:"read_only"`
	AllowOther bool `mapstructure:"allow_other" yaml:"allow_other"`

	// Debug logs every FUSE message at debug level.
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

func (c *Config) applyDefaults() {
	if c.FSName == "" {
		c.FSName = "framefs"
	}
	if c.Subtype == "" {
		c.Subtype = "framefs"
	}
}

// Adapter implements adapter.Adapter for FUSE.
type Adapter struct {
	config Config
	fsys   *vfs.Filesystem

	mu         sync.Mutex
	mountPoint string
	mounted    bool
}

// New creates an adapter. Call SetFilesystem before Serve.
func New(config Config) *Adapter {
	config.applyDefaults()
	return &Adapter{config: config}
}

func (a *Adapter) SetFilesystem(fsys *vfs.Filesystem) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fsys = fsys
	a.mountPoint = resolveMountPoint(a.config.MountPoint, fsys)
}

func resolveMountPoint(configured string, fsys *vfs.Filesystem) string {
	if configured == "" {
		if fsys == nil {
			return ""
		}
		return fsys.MountPoint()
	}
	if filepath.IsAbs(configured) || fsys == nil {
		return filepath.Clean(configured)
	}
	return filepath.Join(fsys.WorkDir(), configured)
}

func (a *Adapter) Protocol() string { return "FUSE" }

func (a *Adapter) MountPoint() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mountPoint == "" && a.config.MountPoint != "" {
		return filepath.Clean(a.config.MountPoint)
	}
	return a.mountPoint
}

func (a *Adapter) mountOptions() []fuse.MountOption {
	opts := []fuse.MountOption{
		fuse.FSName(a.config.FSName),
		fuse.Subtype(a.config.Subtype),
	}
	if a.config.ReadOnly {
		opts = append(opts, fuse.ReadOnly())
	}
	if a.config.AllowOther {
		opts = append(opts, fuse.AllowOther())
	}
	return opts
}

// Serve mounts the filesystem and serves kernel requests until ctx is
// cancelled or the mount goes away.
func (a *Adapter) Serve(ctx context.Context) error {
	a.mu.Lock()
	fsys, mp := a.fsys, a.mountPoint
	a.mu.Unlock()

	if fsys == nil {
		return fmt.Errorf("fuse adapter: no filesystem set")
	}
	if mp == "" {
		return fmt.Errorf("fuse adapter: no mount point configured")
	}

	if err := os.MkdirAll(mp, 0o755); err != nil {
		return fmt.Errorf("create mount point %s: %w", mp, err)
	}

	conn, err := fuse.Mount(mp, a.mountOptions()...)
	if err != nil {
		return fmt.Errorf("mount %s: %w", mp, err)
	}
	defer func() { _ = conn.Close() }()

	a.mu.Lock()
	a.mounted = true
	a.mu.Unlock()
	logger.Info("FUSE filesystem mounted at %s", mp)

	config := &fs.Config{
		WithContext: func(ctx context.Context, req fuse.Request) context.Context {
			h := req.Hdr()
			return vfs.WithCaller(ctx, vfs.Caller{UID: h.Uid, GID: h.Gid, PID: h.Pid})
		},
	}
	if a.config.Debug {
		config.Debug = func(msg interface{}) {
			logger.Debug("FUSE: %v", msg)
		}
	}
	server := fs.New(conn, config)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(NewFS(fsys))
	}()

	select {
	case <-ctx.Done():
		if err := a.Stop(context.Background()); err != nil {
			logger.Warn("Unmount of %s failed: %v", mp, err)
		}
		if err := <-errCh; err != nil {
			logger.Debug("FUSE serve loop ended: %v", err)
		}
		return ctx.Err()
	case err := <-errCh:
		a.mu.Lock()
		a.mounted = false
		a.mu.Unlock()
		if err != nil {
			return fmt.Errorf("serve %s: %w", mp, err)
		}
		logger.Info("FUSE filesystem at %s unmounted", mp)
		return nil
	}
}

// Stop unmounts. Calls while nothing is mounted are no-ops.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	mp, mounted := a.mountPoint, a.mounted
	a.mounted = false
	a.mu.Unlock()

	if !mounted {
		return nil
	}
	logger.Info("Unmounting %s", mp)
	return fuse.Unmount(mp)
}
