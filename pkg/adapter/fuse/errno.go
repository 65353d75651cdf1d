package fuse

import (
	"context"
	"errors"
	"syscall"

	"bazil.org/fuse"
	"github.com/marmos91/framefs/internal/logger"
	"github.com/marmos91/framefs/pkg/vfs"
)

var errnoByCode = map[vfs.ErrorCode]syscall.Errno{
	vfs.ErrNotFound:         syscall.ENOENT,
	vfs.ErrNotADirectory:    syscall.ENOTDIR,
	vfs.ErrIsADirectory:     syscall.EISDIR,
	vfs.ErrBadHandle:        syscall.EBADF,
	vfs.ErrNotImplemented:   syscall.ENOSYS,
	vfs.ErrOutOfSpace:       syscall.ENOSPC,
	vfs.ErrNameCollision:    syscall.EEXIST,
	vfs.ErrInvalidArgument:  syscall.EINVAL,
	vfs.ErrReadOnly:         syscall.EROFS,
	vfs.ErrPermissionDenied: syscall.EACCES,
}

// toErrno converts a filesystem error into the errno returned to the
// kernel. Errors outside the vfs taxonomy become EIO.
func toErrno(err error) error {
	if err == nil {
		return nil
	}
	if code, ok := vfs.CodeOf(err); ok {
		if errno, known := errnoByCode[code]; known {
			return fuse.Errno(errno)
		}
	}
	if errors.Is(err, context.Canceled) {
		return fuse.Errno(syscall.EINTR)
	}
	logger.Debug("FUSE: returning EIO for %v", err)
	return fuse.Errno(syscall.EIO)
}
