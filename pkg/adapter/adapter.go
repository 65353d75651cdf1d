package adapter

import (
	"context"

	"github.com/marmos91/framefs/pkg/vfs"
)

// Adapter exposes a vfs.Filesystem to the host through a kernel protocol
// and is managed by server.Server.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Injection: SetFilesystem() provides the filesystem to serve
//  3. Startup: Serve() mounts and blocks until shutdown
//  4. Shutdown: Stop() unmounts
//
// Thread safety:
// Implementations must be safe for concurrent use. SetFilesystem() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve mounts the filesystem and blocks until the context is cancelled,
	// the filesystem is unmounted externally, or an unrecoverable error
	// occurs.
	//
	// Returns:
	//   - nil when unmounted from outside
	//   - context.Canceled if cancelled via context
	//   - error if mounting or serving fails
	Serve(ctx context.Context) error

	// SetFilesystem injects the filesystem to serve. Called exactly once
	// before Serve().
	SetFilesystem(fs *vfs.Filesystem)

	// Stop unmounts. It must be idempotent and safe to call concurrently
	// with Serve().
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging.
	Protocol() string

	// MountPoint returns the absolute host directory the adapter serves
	// on, or "" before SetFilesystem() when none was configured.
	MountPoint() string
}
