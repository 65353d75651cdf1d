package metrics

import "time"

// DispatchMetrics provides observability for namespace operations.
//
// The filesystem reports every dispatched operation together with the
// fallback tier that served it. This interface is optional - if not
// provided, a no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewDispatchMetrics()
//	fs, err := vfs.NewFilesystem(sb, vfs.Options{Metrics: m})
//
//	// Without metrics (no-op)
//	fs, err := vfs.NewFilesystem(sb, vfs.Options{})
type DispatchMetrics interface {
	// RecordOperation records a completed operation.
	//
	// Parameters:
	//   - op: Operation name (e.g., "read", "write", "readdir")
	//   - tier: Fallback tier that served the call ("own", "directory",
	//     "superblock", "entry" or "none" when resolution failed)
	//   - duration: Time taken by the operation
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(op string, tier string, duration time.Duration, err error)

	// RecordBytesTransferred records bytes read or written.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// SetOpenHandles updates the number of outstanding file and directory handles.
	SetOpenHandles(count int)

	// SetFileCount updates the superblock insertion counter.
	SetFileCount(count uint64)
}

// NewNoopDispatchMetrics returns a DispatchMetrics that discards everything.
func NewNoopDispatchMetrics() DispatchMetrics {
	return noopDispatchMetrics{}
}

// noopDispatchMetrics is a no-op implementation of DispatchMetrics with zero overhead.
type noopDispatchMetrics struct{}

func (noopDispatchMetrics) RecordOperation(op string, tier string, duration time.Duration, err error) {
}
func (noopDispatchMetrics) RecordBytesTransferred(direction string, bytes int64) {}
func (noopDispatchMetrics) SetOpenHandles(count int)                             {}
func (noopDispatchMetrics) SetFileCount(count uint64)                            {}
