package metrics

import "time"

// S3Metrics provides observability for the S3 mirror provider.
//
// This interface is optional - if not provided, a no-op implementation is
// used with zero overhead.
type S3Metrics interface {
	// ObserveOperation records one S3 API call.
	//
	// Parameters:
	//   - operation: API name ("GetObject", "ListObjectsV2", ...)
	//   - duration: Time taken by the call
	//   - err: Error if the call failed, nil if successful
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes downloaded by operation.
	RecordBytes(operation string, bytes int64)

	// SetMirroredObjects updates the number of objects exposed as files.
	SetMirroredObjects(count int)
}

// NewNoopS3Metrics returns an S3Metrics that discards everything.
func NewNoopS3Metrics() S3Metrics {
	return noopS3Metrics{}
}

type noopS3Metrics struct{}

func (noopS3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {}
func (noopS3Metrics) RecordBytes(operation string, bytes int64)                            {}
func (noopS3Metrics) SetMirroredObjects(count int)                                         {}
