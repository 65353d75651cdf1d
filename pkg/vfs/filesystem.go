package vfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marmos91/framefs/internal/logger"
	"github.com/marmos91/framefs/pkg/metrics"
	"go.uber.org/multierr"
)

// Filesystem binds one superblock to the running process.
//
// It is the object adapters talk to: it resolves paths, dispatches
// operations through the fallback chains, and owns the open-handle table.
// All methods are safe for concurrent use.
type Filesystem struct {
	sb      *Superblock
	workDir string
	metrics metrics.DispatchMetrics
	handles *handleTable

	closersMu sync.Mutex
	closers   []io.Closer
}

// Options configures NewFilesystem.
type Options struct {
	// WorkDir resolves a relative mount point. Empty means os.Getwd().
	WorkDir string

	// Metrics receives per-operation observations. Nil disables collection.
	Metrics metrics.DispatchMetrics
}

// NewFilesystem wraps sb in a filesystem handle.
func NewFilesystem(sb *Superblock, opts Options) (*Filesystem, error) {
	if sb == nil {
		return nil, fmt.Errorf("superblock is required")
	}

	wd := opts.WorkDir
	if wd == "" {
		var err error
		wd, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoopDispatchMetrics()
	}

	return &Filesystem{
		sb:      sb,
		workDir: wd,
		metrics: m,
		handles: newHandleTable(),
	}, nil
}

// Superblock returns the bound superblock.
func (fs *Filesystem) Superblock() *Superblock { return fs.sb }

// Root returns the root directory entry.
func (fs *Filesystem) Root() *Entry { return fs.sb.root }

// WorkDir returns the working directory captured at construction.
func (fs *Filesystem) WorkDir() string { return fs.workDir }

// MountPoint returns the superblock mount point as an absolute path.
func (fs *Filesystem) MountPoint() string {
	mp := fs.sb.mountPoint
	if mp == "" {
		return ""
	}
	if filepath.IsAbs(mp) {
		return filepath.Clean(mp)
	}
	return filepath.Join(fs.workDir, mp)
}

// OpenHandles returns the number of outstanding handles.
func (fs *Filesystem) OpenHandles() int { return fs.handles.len() }

// Resolve resolves an absolute path. See Superblock.Resolve.
func (fs *Filesystem) Resolve(p string) (*Entry, error) {
	return fs.sb.Resolve(p)
}

// AddCloser registers a provider resource released by Shutdown.
func (fs *Filesystem) AddCloser(c io.Closer) {
	fs.closersMu.Lock()
	defer fs.closersMu.Unlock()
	fs.closers = append(fs.closers, c)
}

// Shutdown releases registered provider resources in reverse registration
// order and reports every failure.
func (fs *Filesystem) Shutdown() error {
	fs.closersMu.Lock()
	closers := fs.closers
	fs.closers = nil
	fs.closersMu.Unlock()

	if n := fs.handles.len(); n > 0 {
		logger.Warn("Closing filesystem with %d open handles", n)
	}

	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i].Close())
	}
	return err
}

func (fs *Filesystem) opContext(ctx context.Context, e *Entry) *OpContext {
	if ctx == nil {
		ctx = context.Background()
	}
	op := &OpContext{Context: ctx, FS: fs}
	if c, ok := CallerFrom(ctx); ok {
		op.Caller = &c
	}
	if e != nil {
		op.Path = e.Path()
	}
	return op
}

func (fs *Filesystem) observe(op string, tier Tier, start time.Time, err error) {
	fs.metrics.RecordOperation(op, tier.String(), time.Since(start), err)
	if err != nil && logger.Enabled(logger.LevelDebug) {
		logger.Debug("%s failed (tier=%s): %v", op, tier, err)
	}
}
