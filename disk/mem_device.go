package disk

import "sync"

// MemDevice is an in-memory Device used by tests. It has no I/O
// latency of its own, so tests can exercise cache hit/miss and
// eviction behavior deterministically without touching a filesystem.
type MemDevice struct {
	mu       sync.Mutex
	capacity uint32
	data     []byte
}

// NewMemDevice returns a zero-filled in-memory device of capacity sectors.
func NewMemDevice(capacity uint32) *MemDevice {
	return &MemDevice{
		capacity: capacity,
		data:     make([]byte, int(capacity)*SectorSize),
	}
}

func (d *MemDevice) Capacity() uint32 { return d.capacity }

func (d *MemDevice) ReadSector(sector uint32, dst []byte) error {
	if err := checkBounds(sector, d.capacity, len(dst)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	off := int(sector) * SectorSize
	copy(dst, d.data[off:off+SectorSize])
	return nil
}

func (d *MemDevice) WriteSector(sector uint32, src []byte) error {
	if err := checkBounds(sector, d.capacity, len(src)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	off := int(sector) * SectorSize
	copy(d.data[off:off+SectorSize], src)
	return nil
}

func (d *MemDevice) Close() error { return nil }
