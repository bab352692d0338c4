package inode

import "sync"

// Handle is the in-memory inode record of spec.md §3: identity,
// lifecycle counters, and the lock that guards mutating operations.
// It lives in the open-inode registry while openCount > 0.
type Handle struct {
	sector uint32
	layer  *Layer

	// mu guards everything below, the growth decision in WriteAt, and
	// each call to translate. It is taken and released independently
	// by each translate call rather than held across a whole
	// ReadAt/WriteAt transfer, and is never re-entered — no recursive
	// lock, per spec.md §9's REDESIGN FLAG.
	mu sync.Mutex

	openCount    int
	removed      bool
	denyWriteCnt int
	isDir        bool
}

// Sector returns the inode's identity (spec.md "get_inumber").
func (h *Handle) Sector() uint32 { return h.sector }

// IsDir reports the directory flag cached from the on-disk record at open time.
func (h *Handle) IsDir() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isDir
}

// IsRemoved reports whether Remove has been called on this inode.
func (h *Handle) IsRemoved() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removed
}

// OpenCount returns the number of live opens of this inode.
func (h *Handle) OpenCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.openCount
}

// DenyWrite increments the deny-write counter (spec.md "executable
// mapping" use case): while non-zero, WriteAt returns 0 immediately.
func (h *Handle) DenyWrite() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.denyWriteCnt++
}

// AllowWrite decrements the deny-write counter.
func (h *Handle) AllowWrite() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.denyWriteCnt == 0 {
		panic("inode: AllowWrite with no matching DenyWrite")
	}
	h.denyWriteCnt--
}
