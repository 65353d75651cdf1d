package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/framefs/internal/logger"
	"github.com/marmos91/framefs/pkg/adapter"
	"github.com/marmos91/framefs/pkg/metrics"
	"github.com/marmos91/framefs/pkg/vfs"
	"go.uber.org/multierr"
)

// DefaultShutdownTimeout bounds adapter Stop() calls when Options leaves it
// unset.
const DefaultShutdownTimeout = 30 * time.Second

// Server runs the adapters serving one filesystem, plus the optional
// metrics server, and tears everything down together.
//
// Lifecycle:
//  1. Creation: New() with the filesystem
//  2. Registration: AddAdapter() for each mount
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: context cancellation or any adapter failure stops every
//     adapter, then closes the filesystem
//
// Example usage:
//
//	srv := server.New(fsys, server.Options{})
//	if err := srv.AddAdapter(fuse.New(fuseConfig)); err != nil {
//	    return err
//	}
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    return err
//	}
type Server struct {
	fsys *vfs.Filesystem
	opts Options

	mu       sync.RWMutex
	adapters []adapter.Adapter

	served atomic.Bool
}

// Options configures the server.
type Options struct {
	// ShutdownTimeout bounds the Stop() calls. Zero selects
	// DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// Metrics is served alongside the adapters when non-nil.
	Metrics *metrics.Server
}

// New creates a server for fsys.
//
// Panics if fsys is nil (programmer error).
func New(fsys *vfs.Filesystem, opts Options) *Server {
	if fsys == nil {
		panic("filesystem cannot be nil")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Server{
		fsys:     fsys,
		opts:     opts,
		adapters: make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter injects the filesystem into a and registers it. Two adapters
// may not share a mount point.
//
// Panics if a is nil or Serve() has already been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}
	if s.served.Load() {
		panic("cannot add adapter after Serve() has been called")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a.SetFilesystem(s.fsys)
	mp := a.MountPoint()

	for _, existing := range s.adapters {
		if existing.MountPoint() == mp {
			return fmt.Errorf("mount point %s already used by %s adapter", mp, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter at %s", a.Protocol(), mp)
	return nil
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

type adapterError struct {
	protocol string
	err      error
}

// Serve starts every adapter and blocks until ctx is cancelled or an
// adapter stops on its own. It then stops the remaining adapters, waits
// for them and closes the filesystem.
//
// Returns ctx.Err() on cancellation, the first adapter failure otherwise,
// combined with any shutdown errors. Calling Serve twice is an error.
func (s *Server) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		return errors.New("Serve() has already been called on this server instance")
	}

	adapters := s.Adapters()
	if len(adapters) == 0 {
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}

	logger.Info("Starting FrameFS with %d adapter(s)", len(adapters))

	// Adapters and the metrics server run under runCtx so one failure
	// brings everything down.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan adapterError, len(adapters)+1)
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter at %s", protocol, a.MountPoint())

			err := a.Serve(runCtx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", protocol)
				errChan <- adapterError{protocol: protocol}
			case errors.Is(err, context.Canceled) || runCtx.Err() != nil:
				logger.Debug("%s adapter stopped gracefully", protocol)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(adp)
	}

	if s.opts.Metrics != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.opts.Metrics.Start(runCtx); err != nil {
				errChan <- adapterError{protocol: "metrics", err: err}
			}
		}()
	}

	var result error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		result = ctx.Err()
	case ae := <-errChan:
		if ae.err != nil {
			logger.Error("%s failed: %v - initiating shutdown", ae.protocol, ae.err)
			result = fmt.Errorf("%s adapter error: %w", ae.protocol, ae.err)
		} else {
			logger.Info("%s adapter exited - initiating shutdown", ae.protocol)
		}
	}

	cancel()
	result = multierr.Append(result, s.stopAll(adapters))

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	if err := s.fsys.Shutdown(); err != nil {
		result = multierr.Append(result, fmt.Errorf("close filesystem: %w", err))
	}

	logger.Info("FrameFS stopped")
	return result
}

// stopAll stops adapters in reverse registration order, bounded by the
// shutdown timeout, and reports every failure.
func (s *Server) stopAll(adapters []adapter.Adapter) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	var err error
	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		if stopErr := adp.Stop(ctx); stopErr != nil && !errors.Is(stopErr, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", adp.Protocol(), stopErr)
			err = multierr.Append(err, fmt.Errorf("stop %s: %w", adp.Protocol(), stopErr))
		}
	}
	return err
}
