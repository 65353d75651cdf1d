package config

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/marmos91/framefs/internal/logger"
	contentBadger "github.com/marmos91/framefs/pkg/content/badger"
	contentS3 "github.com/marmos91/framefs/pkg/content/s3"
	"github.com/marmos91/framefs/pkg/device/framebuffer"
	"github.com/marmos91/framefs/pkg/metrics"
	"github.com/marmos91/framefs/pkg/vfs"
)

// newS3Client builds the client used by the S3 mirror. Tests replace it.
var newS3Client = func(ctx context.Context, cfg contentS3.Config) (contentS3.Client, error) {
	return contentS3.NewClient(ctx, cfg)
}

// builder carries the state shared by the construction steps.
type builder struct {
	cfg       *Config
	fsys      *vfs.Filesystem
	providers map[string]vfs.FileOps
}

// BuildFilesystem creates the superblock, providers, devices and seed tree
// described by cfg. m may be nil, in which case nothing is observed.
//
// Provider resources are registered on the returned filesystem and
// released by its Close method. On error everything opened so far is
// released.
func BuildFilesystem(ctx context.Context, cfg *Config, m *MetricsResult) (*vfs.Filesystem, error) {
	if m == nil {
		m = &MetricsResult{
			Dispatch: metrics.NewNoopDispatchMetrics(),
			S3:       metrics.NewNoopS3Metrics(),
		}
	}

	budget := vfs.NewBudget(cfg.Filesystem.MaxSizeBytes)
	defaults := vfs.MemoryDefaults(budget, cfg.Filesystem.MaxFileSize)
	providers := map[string]vfs.FileOps{"memory": defaults.File}

	badgerCfg, err := cfg.Providers.BadgerSection()
	if err != nil {
		return nil, err
	}
	var store *contentBadger.Store
	if badgerCfg.Enabled {
		if badgerCfg.MaxFileSize == 0 {
			badgerCfg.MaxFileSize = cfg.Filesystem.MaxFileSize
		}
		store, err = contentBadger.Open(ctx, badgerCfg.Config)
		if err != nil {
			return nil, err
		}
		providers["badger"] = store.FileOps()
	}

	fileOps, ok := providers[cfg.Filesystem.DefaultProvider]
	if !ok {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("default provider %q is not available", cfg.Filesystem.DefaultProvider)
	}
	defaults.File = fileOps

	sb := vfs.NewSuperblock(vfs.SuperblockOptions{
		MountPoint: cfg.Mount.MountPoint,
		Defaults:   defaults,
		RootMode:   os.FileMode(cfg.Filesystem.DirMode),
	})
	fsys, err := vfs.NewFilesystem(sb, vfs.Options{Metrics: m.Dispatch})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	if store != nil {
		fsys.AddCloser(store)
	}

	b := &builder{cfg: cfg, fsys: fsys, providers: providers}
	if err := b.build(ctx, m); err != nil {
		_ = fsys.Shutdown()
		return nil, err
	}

	// Seeding needs a writable namespace, so read-only is applied last.
	sb.SetReadOnly(cfg.Mount.ReadOnly)

	logger.Info("Filesystem ready: %d entries, default provider %s, read-only=%t",
		sb.FileCount(), cfg.Filesystem.DefaultProvider, cfg.Mount.ReadOnly)
	return fsys, nil
}

func (b *builder) build(ctx context.Context, m *MetricsResult) error {
	b.applyOwner(b.fsys.Root())

	for i, node := range b.cfg.Tree {
		if err := b.seed(ctx, node); err != nil {
			return fmt.Errorf("tree[%d] %s: %w", i, node.Path, err)
		}
	}

	if err := b.attachFramebuffer(ctx); err != nil {
		return err
	}
	return b.attachS3(ctx, m.S3)
}

func (b *builder) applyOwner(e *vfs.Entry) {
	fc := b.cfg.Filesystem
	if fc.UID == nil && fc.GID == nil {
		return
	}
	a := e.Attr()
	uid, gid := a.UID, a.GID
	if fc.UID != nil {
		uid = *fc.UID
	}
	if fc.GID != nil {
		gid = *fc.GID
	}
	e.SetOwner(uid, gid)
}

// ensureDir returns the directory at p, creating missing components.
func (b *builder) ensureDir(ctx context.Context, p string) (*vfs.Directory, error) {
	cur := b.fsys.Superblock().RootDir()
	walked := "/"

	for _, seg := range strings.Split(strings.Trim(path.Clean(p), "/"), "/") {
		if seg == "" {
			continue
		}
		walked = path.Join(walked, seg)

		e, err := cur.Lookup(seg)
		if vfs.IsCode(err, vfs.ErrNotFound) {
			e, err = b.fsys.Mkdir(ctx, walked, os.FileMode(b.cfg.Filesystem.DirMode))
			if err == nil {
				b.applyOwner(e)
			}
		}
		if err != nil {
			return nil, err
		}

		if cur, err = e.Dir(); err != nil {
			return nil, fmt.Errorf("%s: %w", walked, err)
		}
	}
	return cur, nil
}

func (b *builder) seed(ctx context.Context, node NodeConfig) error {
	p := path.Clean(node.Path)

	if node.Type == "dir" {
		dir, err := b.ensureDir(ctx, p)
		if err != nil {
			return err
		}
		if node.Mode != 0 {
			dir.Entry().SetMode(os.FileMode(node.Mode))
		}
		if node.Provider != "" {
			dir.SetFileDefault(b.providers[node.Provider])
		}
		return nil
	}

	if _, err := b.ensureDir(ctx, path.Dir(p)); err != nil {
		return err
	}

	mode := os.FileMode(b.cfg.Filesystem.FileMode)
	if node.Mode != 0 {
		mode = os.FileMode(node.Mode)
	}
	e, err := b.fsys.Create(ctx, p, mode)
	if err != nil {
		return err
	}
	b.applyOwner(e)

	if node.Provider != "" {
		f, err := e.File()
		if err != nil {
			return err
		}
		f.SetOps(b.providers[node.Provider])
	}

	if node.Content == "" {
		return nil
	}
	h, err := b.fsys.Open(ctx, e, os.O_WRONLY)
	if err != nil {
		return err
	}
	_, werr := b.fsys.Write(ctx, h, []byte(node.Content), 0)
	if rerr := b.fsys.Release(ctx, h); werr == nil {
		werr = rerr
	}
	return werr
}

func (b *builder) attachFramebuffer(ctx context.Context) error {
	fbCfg, err := b.cfg.Providers.FramebufferSection()
	if err != nil || !fbCfg.Enabled {
		return err
	}

	var panel framebuffer.Panel
	switch fbCfg.Panel.Type {
	case "", "log":
		panel = framebuffer.LogPanel{Geometry: fbCfg.Geometry}
	case "none":
		panel = framebuffer.NopPanel{}
	case "file":
		fp, err := framebuffer.OpenFilePanel(fbCfg.Panel.Path, fbCfg.Geometry)
		if err != nil {
			return err
		}
		b.fsys.AddCloser(fp)
		panel = fp
	default:
		return fmt.Errorf("unknown panel type %q", fbCfg.Panel.Type)
	}

	fb, err := framebuffer.New(fbCfg.Geometry, panel)
	if err != nil {
		return fmt.Errorf("framebuffer: %w", err)
	}

	parent, name := path.Split(path.Clean(fbCfg.Path))
	dir, err := b.ensureDir(ctx, parent)
	if err != nil {
		return fmt.Errorf("framebuffer: %w", err)
	}
	e, err := framebuffer.Attach(dir, name, fb)
	if err != nil {
		return fmt.Errorf("framebuffer: %w", err)
	}
	b.applyOwner(e)

	logger.Info("Framebuffer %s attached at %s", fbCfg.Geometry, e.Path())
	return nil
}

func (b *builder) attachS3(ctx context.Context, m metrics.S3Metrics) error {
	s3Cfg, err := b.cfg.Providers.S3Section()
	if err != nil || !s3Cfg.Enabled {
		return err
	}

	client, err := newS3Client(ctx, s3Cfg.Config)
	if err != nil {
		return fmt.Errorf("s3: %w", err)
	}
	mirror, err := contentS3.NewMirror(contentS3.MirrorConfig{
		Client:  client,
		Bucket:  s3Cfg.Bucket,
		Prefix:  s3Cfg.Prefix,
		Metrics: m,
		Limiter: s3Cfg.NewLimiter(),
	})
	if err != nil {
		return err
	}

	parent, name := path.Split(path.Clean(s3Cfg.Path))
	dir, err := b.ensureDir(ctx, parent)
	if err != nil {
		return fmt.Errorf("s3: %w", err)
	}
	if _, err := mirror.Attach(ctx, dir, name); err != nil {
		return fmt.Errorf("s3: %w", err)
	}
	return nil
}
