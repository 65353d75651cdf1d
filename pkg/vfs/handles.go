package vfs

import "sync"

// HandleID identifies an open file or directory. Zero is never issued.
type HandleID uint64

type handle struct {
	entry    *Entry
	dir      bool
	writable bool
	closed   bool
}

// handleTable binds handle IDs to the entries they were opened on so that
// read, write, close and release can be dispatched without a path. Its lock
// is never held while an operation runs.
type handleTable struct {
	mu      sync.Mutex
	next    HandleID
	handles map[HandleID]*handle
}

func newHandleTable() *handleTable {
	return &handleTable{handles: make(map[HandleID]*handle)}
}

func (t *handleTable) add(h handle) (HandleID, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.handles[t.next] = &h
	return t.next, len(t.handles)
}

// get returns a copy of the handle state.
func (t *handleTable) get(id HandleID) (handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[id]
	if !ok {
		return handle{}, Errorf(ErrBadHandle, "", "unknown handle %d", id)
	}
	return *h, nil
}

// markClosed flips the closed flag and reports whether this call did it.
func (t *handleTable) markClosed(id HandleID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[id]
	if !ok || h.closed {
		return false
	}
	h.closed = true
	return true
}

// take removes the handle and returns its final state with the number of
// handles left.
func (t *handleTable) take(id HandleID) (handle, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[id]
	if !ok {
		return handle{}, len(t.handles), Errorf(ErrBadHandle, "", "unknown handle %d", id)
	}
	delete(t.handles, id)
	return *h, len(t.handles), nil
}

func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}
