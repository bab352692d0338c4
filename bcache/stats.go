package bcache

import "sync/atomic"

// Stats holds the four counters spec.md §3/§8 requires: tries, hits,
// disk reads, and disk writes. Each field is updated with
// sync/atomic so Stats() can be read without taking the cache's global
// lock, and so concurrent fetch/flush paths never race on the
// counters themselves (only the cache's own mutexes guard the slot
// state the counters describe).
type Stats struct {
	tries      uint64
	hits       uint64
	diskReads  uint64
	diskWrites uint64
}

func (s *Stats) addTry()       { atomic.AddUint64(&s.tries, 1) }
func (s *Stats) addHit()       { atomic.AddUint64(&s.hits, 1) }
func (s *Stats) addDiskRead()  { atomic.AddUint64(&s.diskReads, 1) }
func (s *Stats) addDiskWrite() { atomic.AddUint64(&s.diskWrites, 1) }

func (s *Stats) reset() {
	atomic.StoreUint64(&s.tries, 0)
	atomic.StoreUint64(&s.hits, 0)
	atomic.StoreUint64(&s.diskReads, 0)
	atomic.StoreUint64(&s.diskWrites, 0)
}

// Snapshot is a point-in-time copy of Stats' counters.
type Snapshot struct {
	Tries      uint64
	Hits       uint64
	DiskReads  uint64
	DiskWrites uint64
}

// Stats returns a snapshot of the cache's tries/hits/disk-reads/disk-writes counters.
func (c *Cache) Stats() Snapshot {
	return Snapshot{
		Tries:      atomic.LoadUint64(&c.stats.tries),
		Hits:       atomic.LoadUint64(&c.stats.hits),
		DiskReads:  atomic.LoadUint64(&c.stats.diskReads),
		DiskWrites: atomic.LoadUint64(&c.stats.diskWrites),
	}
}
