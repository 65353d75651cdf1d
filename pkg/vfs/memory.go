package vfs

import (
	"math"
	"sync/atomic"
)

// MaxBufferSize is the largest file any in-memory provider will hold.
// Offsets and sizes past it fail with ErrOutOfSpace before allocating.
const MaxBufferSize int64 = min(1<<32, math.MaxInt)

// CheckExtent reports ErrOutOfSpace when n bytes at off would end past
// limit, which must not exceed MaxBufferSize. The comparison cannot
// overflow for any non-negative off.
func CheckExtent(path string, off int64, n int, limit int64) error {
	if limit <= 0 || limit > MaxBufferSize {
		limit = MaxBufferSize
	}
	if off > limit-int64(n) {
		return Errorf(ErrOutOfSpace, path, "%d bytes at offset %d exceed file size limit %d", n, off, limit)
	}
	return nil
}

// Budget caps the bytes held by in-memory content buffers across a whole
// filesystem. A zero limit means unlimited.
type Budget struct {
	limit int64
	used  atomic.Int64
}

// NewBudget returns a budget of limit bytes.
func NewBudget(limit int64) *Budget {
	return &Budget{limit: limit}
}

// Limit returns the configured cap.
func (b *Budget) Limit() int64 { return b.limit }

// Used returns the bytes currently reserved.
func (b *Budget) Used() int64 { return b.used.Load() }

// Reserve claims n more bytes, reporting false when the cap would be
// exceeded. Negative n releases.
func (b *Budget) Reserve(n int64) bool {
	if b == nil {
		return true
	}
	for {
		cur := b.used.Load()
		next := cur + n
		if n > 0 && b.limit > 0 && next > b.limit {
			return false
		}
		if next < 0 {
			next = 0
		}
		if b.used.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// MemoryFileOps is the reference content provider: file content lives in
// the payload buffer.
//
// Write and truncate report ErrOutOfSpace when the budget or MaxFileSize
// would be exceeded, keeping the previous content and size intact.
type MemoryFileOps struct {
	// Budget is shared by every file using this table. Nil is unlimited.
	Budget *Budget

	// MaxFileSize caps a single file. Zero is unlimited.
	MaxFileSize int64
}

func (m *MemoryFileOps) Open(op *OpContext, f *File) error {
	f.IncOpen()
	return nil
}

func (m *MemoryFileOps) Close(op *OpContext, f *File) error {
	_, err := f.DecOpen()
	return err
}

// Read copies from the content buffer, clamped to the logical size.
func (m *MemoryFileOps) Read(op *OpContext, f *File, p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if off >= f.size {
		return 0, nil
	}
	end := off + int64(len(p))
	if end > f.size {
		end = f.size
	}
	return copy(p, f.content[off:end]), nil
}

// Write copies p at off, growing the buffer when off+len(p) passes the end.
func (m *MemoryFileOps) Write(op *OpContext, f *File, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if err := CheckExtent(f.entry.Path(), off, len(p), m.MaxFileSize); err != nil {
		return 0, err
	}

	end := off + int64(len(p))
	if err := m.write(f, p, off, end); err != nil {
		return 0, err
	}

	f.entry.Touch()
	return len(p), nil
}

func (m *MemoryFileOps) write(f *File, p []byte, off, end int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if end > f.size {
		if err := m.grow(f, end); err != nil {
			return err
		}
	}
	copy(f.content[off:end], p)
	return nil
}

// grow reallocates to size bytes. On failure the old buffer and size are
// left untouched. Caller holds f.mu.
func (m *MemoryFileOps) grow(f *File, size int64) error {
	if err := m.reserve(f, size); err != nil {
		return err
	}

	buf := make([]byte, size)
	copy(buf, f.content[:f.size])
	f.content = buf
	f.size = size
	return nil
}

// Truncate discards the content and reallocates exactly size zero bytes.
func (m *MemoryFileOps) Truncate(op *OpContext, f *File, size int64) error {
	if err := m.truncate(f, size); err != nil {
		return err
	}
	f.entry.Touch()
	return nil
}

func (m *MemoryFileOps) truncate(f *File, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := m.reserve(f, size); err != nil {
		return err
	}

	f.content = make([]byte, size)
	f.size = size
	return nil
}

// reserve checks size against the per-file and buffer limits and claims
// the growth from the budget. Caller holds f.mu.
func (m *MemoryFileOps) reserve(f *File, size int64) error {
	if err := CheckExtent(f.entry.Path(), size, 0, m.MaxFileSize); err != nil {
		return err
	}
	if !m.Budget.Reserve(size - int64(len(f.content))) {
		return Errorf(ErrOutOfSpace, f.entry.Path(), "filesystem content budget of %d bytes exhausted", m.Budget.Limit())
	}
	return nil
}

func (m *MemoryFileOps) Getattr(op *OpContext, f *File) (Attr, error) {
	return f.entry.Attr(), nil
}

func (m *MemoryFileOps) Release(op *OpContext, f *File) error {
	return nil
}
