package inode

import "sync"

// registry is the process-wide open-inode table of spec.md §3,
// keyed by sector number instead of an opaque handle id — grounded on
// the teacher's handleMap (fuse/handle.go), which keys an analogous
// refcounted table by an auto-incrementing id; here the inode's own
// sector number is already a stable, natural key, so no separate id
// allocator is needed.
type registry struct {
	mu      sync.Mutex
	entries map[uint32]*Handle
}

func newRegistry() *registry {
	return &registry{entries: make(map[uint32]*Handle)}
}

// open returns the existing Handle for sector, incrementing its open
// count, or creates one via newHandle if none exists yet. newHandle is
// only invoked while the registry lock is held, and only on a miss.
func (r *registry) open(sector uint32, newHandle func() (*Handle, error)) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.entries[sector]; ok {
		h.mu.Lock()
		h.openCount++
		h.mu.Unlock()
		return h, nil
	}

	h, err := newHandle()
	if err != nil {
		return nil, err
	}
	h.sector = sector
	h.openCount = 1
	r.entries[sector] = h
	return h, nil
}

// reopen increments h's open count without a registry lookup; h must
// already be registered.
func (r *registry) reopen(h *Handle) {
	h.mu.Lock()
	h.openCount++
	h.mu.Unlock()
}

// close decrements h's open count. If it reaches zero, h is deleted
// from the registry and, if Remove had been called, release is
// invoked to free the inode's on-disk sectors. The decrement, the
// zero check, the delete, and the release all happen under the
// registry lock (taken before the handle lock, the same order open
// uses), so a concurrent open on the same sector can never land
// between the decrement and the delete and resurrect a handle whose
// sectors are about to be released out from under it, and can never
// reuse the now-freed sectors before release has finished with them.
func (r *registry) close(h *Handle, release func(wasRemoved bool) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h.mu.Lock()
	h.openCount--
	last := h.openCount == 0
	wasRemoved := h.removed
	h.mu.Unlock()

	if !last {
		return nil
	}
	delete(r.entries, h.sector)

	if wasRemoved {
		return release(true)
	}
	return nil
}

// remove sets h's removed flag; freeing is deferred to the last close.
func (r *registry) remove(h *Handle) {
	h.mu.Lock()
	h.removed = true
	h.mu.Unlock()
}
