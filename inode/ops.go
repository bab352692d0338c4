package inode

import (
	"fmt"

	"github.com/patinaos/filesys/bcache"
	"github.com/patinaos/filesys/disk"
	"github.com/patinaos/filesys/freemap"
)

// Layer is the inode layer of spec.md §2/§4.2: it issues byte-granular
// cache operations to translate (inode, offset) to sectors, and
// consults the free map only when an inode grows or is unlinked.
type Layer struct {
	cache *bcache.Cache
	free  *freemap.Map
	reg   *registry
}

// NewLayer constructs an inode Layer over cache and free.
func NewLayer(cache *bcache.Cache, free *freemap.Map) *Layer {
	return &Layer{cache: cache, free: free, reg: newRegistry()}
}

// Create writes a fresh on-disk inode record at sector with the given
// initial length and directory flag (spec.md §6 "create"). Create does
// not mark sector in use in the free map; the last Close of a removed
// inode releases sector there, so sector is expected to have been
// allocated or reserved in the free map beforehand.
func (l *Layer) Create(sector uint32, length int64, isDir bool) (bool, error) {
	if length < 0 || length > MaxFileSize {
		return false, ErrTooLarge
	}
	d := onDiskInode{Magic: Magic, IsDir: isDir}
	if length > 0 {
		if err := extendTo(l.cache, l.free, &d, length); err != nil {
			return false, err
		}
	}
	buf := d.encode()
	if _, err := l.cache.Write(sector, buf[:], disk.SectorSize, 0); err != nil {
		return false, err
	}
	return true, nil
}

// Open returns the open Handle for sector, creating and registering
// one on first open (spec.md §4.2 "Inode open/close/remove").
func (l *Layer) Open(sector uint32) (*Handle, error) {
	return l.reg.open(sector, func() (*Handle, error) {
		d, err := l.readDiskInode(sector)
		if err != nil {
			return nil, err
		}
		return &Handle{layer: l, isDir: d.IsDir}, nil
	})
}

// Reopen increments h's open count (spec.md "reopen").
func (l *Layer) Reopen(h *Handle) {
	l.reg.reopen(h)
}

// Close decrements h's open count; on the last close of a removed
// inode, every sector it reaches is returned to the free map and the
// inode sector itself is released (spec.md "close").
func (l *Layer) Close(h *Handle) error {
	return l.reg.close(h, func(wasRemoved bool) error {
		return l.releaseAll(h.sector)
	})
}

// Remove marks h for deletion; freeing is deferred to the last close
// (spec.md "remove").
func (l *Layer) Remove(h *Handle) {
	l.reg.remove(h)
}

func (l *Layer) readDiskInode(sector uint32) (onDiskInode, error) {
	var buf [disk.SectorSize]byte
	if _, err := l.cache.Read(sector, buf[:], disk.SectorSize, 0); err != nil {
		return onDiskInode{}, err
	}
	d := decodeInode(buf[:])
	if d.Magic != Magic {
		panic(fmt.Sprintf("inode: sector %d: %v", sector, ErrBadMagic))
	}
	return d, nil
}

func (l *Layer) writeDiskInode(sector uint32, d *onDiskInode) error {
	buf := d.encode()
	_, err := l.cache.Write(sector, buf[:], disk.SectorSize, 0)
	return err
}

// Length returns h's current length in bytes.
func (h *Handle) Length() (int64, error) {
	d, err := h.layer.readDiskInode(h.sector)
	if err != nil {
		return 0, err
	}
	return int64(d.Length), nil
}

// translate takes the inode lock briefly to decode the current
// on-disk record and translate pos to a physical sector, per spec.md
// §5 ("per-inode lock ... briefly around each translation within
// read_at/write_at"). Per spec.md §9, the record is re-read from the
// cache on every call rather than cached in the Handle; the cache
// itself absorbs the repeated read cheaply once the sector is hot.
func (h *Handle) translate(pos int64) (sector uint32, length int64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, err := h.layer.readDiskInode(h.sector)
	if err != nil {
		return 0, 0, err
	}
	sector, err = byteToSector(h.layer.cache, &d, dataBlockNumber(pos))
	return sector, int64(d.Length), err
}

// ReadAt copies up to len(buf) bytes starting at offset into buf,
// returning the number of bytes actually read. Reads never extend the
// file and stop at a hole (spec.md "read_at").
func (h *Handle) ReadAt(buf []byte, offset int64) (int, error) {
	length, err := h.Length()
	if err != nil {
		return 0, err
	}

	size := len(buf)
	if offset+int64(size) > length {
		return 0, nil
	}

	total := 0
	for total < size {
		pos := offset + int64(total)
		sector, length, err := h.translate(pos)
		if err != nil {
			return total, err
		}
		if sector == 0 {
			break // hole: stop, return the partial count so far
		}

		sectorOff := int(pos % disk.SectorSize)
		want := size - total
		if remaining := int(length - pos); want > remaining {
			want = remaining
		}
		chunk := make([]byte, want)
		n2, err := h.layer.cache.Read(sector, chunk, want, sectorOff)
		if err != nil {
			return total, err
		}
		copy(buf[total:total+n2], chunk[:n2])
		total += n2
		if n2 == 0 {
			break
		}
	}
	return total, nil
}

// WriteAt copies len(buf) bytes from buf to offset, extending the
// file first if the write reaches past the current length (spec.md
// "write_at"). Returns the number of bytes actually written: 0 if
// writes are denied or extension fails, otherwise len(buf).
func (h *Handle) WriteAt(buf []byte, offset int64) (int, error) {
	size := len(buf)
	want := offset + int64(size)

	h.mu.Lock()
	if h.denyWriteCnt > 0 {
		h.mu.Unlock()
		return 0, nil
	}
	d, err := h.layer.readDiskInode(h.sector)
	if err != nil {
		h.mu.Unlock()
		return 0, err
	}
	if want > int64(d.Length) {
		if err := extendTo(h.layer.cache, h.layer.free, &d, want); err != nil {
			h.mu.Unlock()
			// spec.md §7: NoSpace and TooLarge both surface as a short
			// write (0 bytes), not a Go error; the inode is left
			// byte-identical by extendTo's rollback.
			return 0, nil
		}
		if err := h.layer.writeDiskInode(h.sector, &d); err != nil {
			h.mu.Unlock()
			return 0, err
		}
	}
	h.mu.Unlock()

	total := 0
	for total < size {
		pos := offset + int64(total)
		sector, _, err := h.translate(pos)
		if err != nil {
			return total, err
		}
		if sector == 0 {
			// Extension guarantees every sector up to the new length is
			// allocated; reaching a hole here means extension didn't
			// cover pos, which shouldn't happen. Treat defensively as
			// end of writable range rather than writing past a hole.
			break
		}
		sectorOff := int(pos % disk.SectorSize)
		chunk := size - total
		if max := disk.SectorSize - sectorOff; chunk > max {
			chunk = max
		}
		n2, err := h.layer.cache.Write(sector, buf[total:total+chunk], chunk, sectorOff)
		if err != nil {
			return total, err
		}
		total += n2
		if n2 == 0 {
			break
		}
	}
	return total, nil
}

// releaseAll walks every sector reachable from the inode at sector and
// returns them to the free map, then frees the inode sector itself.
// Grounded on inode.c's deallocate walk; per spec.md §9 Open
// Questions, this deliberately does NOT reproduce the original's typo
// of re-reading disk_data->indirect while walking the doubly-indirect
// tree — it walks doubly_indirect, as the spec's stated intent
// requires.
func (l *Layer) releaseAll(sector uint32) error {
	d, err := l.readDiskInode(sector)
	if err != nil {
		return err
	}

	for _, s := range d.Direct {
		if s != 0 {
			l.free.Release(s)
		}
	}

	if d.Indirect != 0 {
		blk, err := readIndirectBlock(l.cache, d.Indirect)
		if err != nil {
			return err
		}
		for _, s := range blk {
			if s != 0 {
				l.free.Release(s)
			}
		}
		l.free.Release(d.Indirect)
	}

	if d.DoublyIndirect != 0 {
		top, err := readIndirectBlock(l.cache, d.DoublyIndirect)
		if err != nil {
			return err
		}
		for _, l2sector := range top {
			if l2sector == 0 {
				continue
			}
			blk, err := readIndirectBlock(l.cache, l2sector)
			if err != nil {
				return err
			}
			for _, s := range blk {
				if s != 0 {
					l.free.Release(s)
				}
			}
			l.free.Release(l2sector)
		}
		l.free.Release(d.DoublyIndirect)
	}

	l.free.Release(sector)
	return nil
}
