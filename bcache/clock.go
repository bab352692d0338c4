package bcache

// evictLocked runs the clock (second-chance) replacement scan of
// spec.md §4.1.1. Caller holds c.mu. Returns a slot with its lock held
// and ready for the caller to rebind: either a free slot (valid ==
// false) or a chosen victim that has already been flushed if dirty.
//
// The scan only ever tries slot locks without blocking
// (sync.Mutex.TryLock). A slot whose lock is held belongs to another
// goroutine that is filling it from disk or copying its payload; the
// scan skips it instead of waiting on that work while holding c.mu.
// With every slot free of external holders the used bit is
// cleared within one lap and a victim is chosen within two, so the
// scan is bounded by 2*len(slots) hand advances. If every slot is
// externally held, the scan spins until one is released.
func (c *Cache) evictLocked() (*slot, error) {
	n := len(c.slots)
	for {
		s := c.slots[c.hand]
		c.hand = (c.hand + 1) % n

		if !s.mu.TryLock() {
			continue
		}

		if !s.valid {
			return s, nil
		}
		if s.used {
			s.used = false
			s.mu.Unlock()
			continue
		}

		if err := c.flushLocked(s); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.valid = false
		return s, nil
	}
}
