// Package bcache implements the fixed-capacity, write-back buffer
// cache described in spec.md §3/§4.1: a bounded array of sector-sized
// slots with a clock (second-chance) replacement policy, serving
// byte-granular reads and writes against logical sectors and filling
// misses from an underlying disk.Device.
package bcache

import (
	"fmt"
	"sync"

	"github.com/patinaos/filesys/disk"
)

// DefaultSlots is the historical cache capacity (spec.md §9: 64 minus
// one slot reserved for cache metadata in the original constrained
// environment). This Go reimplementation has no such constraint, but
// keeps the constant as the default so a caller that doesn't care can
// just ask for DefaultSlots.
const DefaultSlots = 63

// slot is one cached sector's worth of state (spec.md §3).
type slot struct {
	mu     sync.Mutex
	sector uint32 // valid only if valid is true
	valid  bool
	used   bool
	dirty  bool
	data   [disk.SectorSize]byte
}

// Cache is a fixed array of N slots backed by a disk.Device. The zero
// value is not usable; construct with New.
type Cache struct {
	dev   disk.Device
	slots []*slot

	// global lock: protects clock hand position and the sector-to-slot
	// association (which slot, if any, currently caches a given
	// sector). Held only across lookup + eviction selection, never
	// across I/O (spec.md §4.1 "Rationale for the lock order").
	mu   sync.Mutex
	hand int

	stats Stats
}

// New constructs a Cache with nslots slots backed by dev.
func New(dev disk.Device, nslots int) *Cache {
	if nslots <= 0 {
		nslots = DefaultSlots
	}
	c := &Cache{
		dev:   dev,
		slots: make([]*slot, nslots),
	}
	for i := range c.slots {
		c.slots[i] = &slot{}
	}
	return c
}

// Read copies up to size bytes from byte offset offs of sector into
// buf, returning the number of bytes actually copied. Per spec.md
// §4.1, this is min(size, SectorSize-offs), or 0 if offs > SectorSize.
func (c *Cache) Read(sector uint32, buf []byte, size, offs int) (int, error) {
	s, err := c.fetch(sector)
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	n := copyLen(size, offs)
	if n > 0 {
		copy(buf[:n], s.data[offs:offs+n])
		s.used = true
	}
	return n, nil
}

// Write copies up to size bytes from buf into byte offset offs of
// sector, marking the slot dirty, and returns the number of bytes
// actually copied.
func (c *Cache) Write(sector uint32, buf []byte, size, offs int) (int, error) {
	s, err := c.fetch(sector)
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	n := copyLen(size, offs)
	if n > 0 {
		copy(s.data[offs:offs+n], buf[:n])
		s.used = true
		s.dirty = true
	}
	return n, nil
}

func copyLen(size, offs int) int {
	if offs > disk.SectorSize {
		return 0
	}
	n := size
	if max := disk.SectorSize - offs; n > max {
		n = max
	}
	if n < 0 {
		n = 0
	}
	return n
}

// fetch returns the slot caching sector, with its per-slot lock held.
// It implements the lookup-and-fill protocol of spec.md §4.1: scan for
// a hit under the global lock; on miss, evict a victim (still under
// the global lock), bind it to sector, release the global lock, then
// fill it from disk.
func (c *Cache) fetch(sector uint32) (*slot, error) {
	if sector == 0 {
		return nil, disk.ErrInvalidSector
	}

	c.mu.Lock()
	c.stats.addTry()

	for _, s := range c.slots {
		if s.valid && s.sector == sector {
			s.mu.Lock()
			c.stats.addHit()
			c.mu.Unlock()
			return s, nil
		}
	}

	victim, err := c.evictLocked()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	victim.sector = sector
	victim.valid = true
	victim.dirty = false
	c.mu.Unlock()

	// I/O happens outside the global lock; the slot lock (held since
	// eviction) is enough to keep concurrent fetchers of the same
	// sector out until the fill completes.
	if err := c.dev.ReadSector(sector, victim.data[:]); err != nil {
		victim.valid = false
		victim.mu.Unlock()
		return nil, fmt.Errorf("bcache: fill sector %d: %w", sector, err)
	}
	c.stats.addDiskRead()
	return victim, nil
}

// FlushAll writes every dirty slot back to disk and clears its dirty
// flag.
func (c *Cache) FlushAll() error {
	for _, s := range c.slots {
		s.mu.Lock()
		err := c.flushLocked(s)
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// NumSlots returns the cache's fixed slot count.
func (c *Cache) NumSlots() int { return len(c.slots) }

// FlushSlotAt writes back slot i if it is dirty. Callers fanning
// FlushAll out across a worker pool (see fsys.FlushAll) use this to
// flush disjoint slots concurrently; each slot's own lock keeps it
// safe with respect to concurrent Read/Write on that slot.
func (c *Cache) FlushSlotAt(i int) error {
	s := c.slots[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.flushLocked(s)
}

// flushLocked writes s back to disk if dirty. Caller holds s.mu.
func (c *Cache) flushLocked(s *slot) error {
	if !s.valid || !s.dirty {
		return nil
	}
	if err := c.dev.WriteSector(s.sector, s.data[:]); err != nil {
		return fmt.Errorf("bcache: flush sector %d: %w", s.sector, err)
	}
	c.stats.addDiskWrite()
	s.dirty = false
	return nil
}

// Close flushes all dirty slots and releases the backing device.
func (c *Cache) Close() error {
	if err := c.FlushAll(); err != nil {
		return err
	}
	return c.dev.Close()
}

// Reset is equivalent to Close followed by re-initialization: it
// flushes, then invalidates every slot and clears statistics. The
// cache remains usable afterward against the same device.
func (c *Cache) Reset() error {
	if err := c.FlushAll(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.slots {
		s.mu.Lock()
		s.valid = false
		s.used = false
		s.dirty = false
		s.sector = 0
		s.mu.Unlock()
	}
	c.hand = 0
	c.stats.reset()
	return nil
}
