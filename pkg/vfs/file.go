package vfs

import "sync"

// File is the payload of a regular-file entry.
//
// The lock guards the open count, the content buffer, the logical size,
// the provider slot and the file's own operation table. The content buffer
// is owned by the payload; Content returns copies.
type File struct {
	entry *Entry

	mu      sync.Mutex
	open    int
	content []byte
	size    int64
	private any
	ops     FileOps
}

func (*File) Kind() Kind { return KindFile }
func (*File) isPayload() {}

// Entry returns the entry owning this payload.
func (f *File) Entry() *Entry { return f.entry }

// Ops returns the file's own table (nil when it relies on defaults).
func (f *File) Ops() FileOps {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ops
}

// SetOps replaces the file's own table.
func (f *File) SetOps(ops FileOps) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = ops
}

// OpenCount returns the number of outstanding opens.
func (f *File) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// IncOpen increments the open count and returns the new value.
func (f *File) IncOpen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open++
	return f.open
}

// DecOpen decrements the open count. It fails with ErrBadHandle when the
// file is not open, leaving the count at zero.
func (f *File) DecOpen() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open == 0 {
		return 0, newError(ErrBadHandle, f.entry.Path())
	}
	f.open--
	return f.open, nil
}

// Size returns the logical content size.
func (f *File) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// SetSize records the logical size for providers that keep content
// outside the payload buffer.
func (f *File) SetSize(size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = size
}

// Content returns a copy of the payload buffer up to the logical size.
func (f *File) Content() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, f.size)
	copy(out, f.content)
	return out
}

// SetContent replaces the payload buffer with a copy of data.
func (f *File) SetContent(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = buf
	f.size = int64(len(buf))
}

// Private returns the provider-owned state slot.
func (f *File) Private() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.private
}

// SetPrivate stores provider-owned state.
func (f *File) SetPrivate(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.private = v
}
