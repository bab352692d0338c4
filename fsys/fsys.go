// Package fsys wires disk, freemap, bcache, and inode into a single
// FileSystem value, mirroring the role the original filesys_init plays
// in bringing up the whole storage stack over one block device.
package fsys

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/patinaos/filesys/bcache"
	"github.com/patinaos/filesys/disk"
	"github.com/patinaos/filesys/freemap"
	"github.com/patinaos/filesys/inode"
)

// RootSector is the well-known sector of the root directory inode,
// created by Format. Directory *content* operations are an external
// collaborator's job; fsys only guarantees this sector holds a valid,
// empty directory inode a directory layer can build on.
const RootSector uint32 = 1

// freeMapBaseSector is the first of the sectors reserved to persist
// the free map's bitmap across sessions, so Open never hands out a
// sector a prior session already allocated (see persistFreeMap/
// loadFreeMap). Grounded on free-map.c's own well-known free-map
// inode sector in the original filesystem.
const freeMapBaseSector uint32 = RootSector + 1

// freeMapSectorCount returns how many whole sectors are needed to
// store a bitmap covering capacity sectors.
func freeMapSectorCount(capacity uint32) int {
	return (freemap.BitmapBytes(capacity) + disk.SectorSize - 1) / disk.SectorSize
}

// FileSystem bundles the four layers of spec.md §2 into the object a
// caller constructs once and uses for the lifetime of a mounted image.
type FileSystem struct {
	Disk   disk.Device
	Free   *freemap.Map
	Cache  *bcache.Cache
	Inodes *inode.Layer
}

// Format initializes a fresh file system over dev: it builds the free
// map and buffer cache, reserves sector 0 (done implicitly by
// freemap.New), creates an empty root directory inode at RootSector,
// and reserves the run of sectors that will hold the free map's own
// persisted bitmap so neither is ever handed out by AllocateOne. dev
// must not already contain a file system a caller cares about — Format
// does not check for one, matching filesys_init's own "format flag"
// contract where the caller decides.
func Format(dev disk.Device, nslots int) (*FileSystem, error) {
	capacity := dev.Capacity()
	nFreeMapSectors := uint32(freeMapSectorCount(capacity))
	if capacity <= freeMapBaseSector+nFreeMapSectors {
		return nil, fmt.Errorf("fsys: device capacity %d too small to hold root sector %d and its free map", capacity, RootSector)
	}

	free := freemap.New(capacity)
	cache := bcache.New(dev, nslots)
	inodes := inode.NewLayer(cache, free)

	if _, err := inodes.Create(RootSector, 0, true); err != nil {
		return nil, fmt.Errorf("fsys: create root inode: %w", err)
	}
	if err := free.Reserve(RootSector); err != nil {
		return nil, fmt.Errorf("fsys: reserve root sector: %w", err)
	}
	for i := uint32(0); i < nFreeMapSectors; i++ {
		if err := free.Reserve(freeMapBaseSector + i); err != nil {
			return nil, fmt.Errorf("fsys: reserve free map sector: %w", err)
		}
	}

	fs := &FileSystem{Disk: dev, Free: free, Cache: cache, Inodes: inodes}
	if err := fs.persistFreeMap(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Open brings up a FileSystem over an already-formatted dev, restoring
// the free map's allocation state from the sectors Format/FlushAll/
// Close last persisted it to. Without this, a fresh freemap.New would
// know nothing about sectors a prior session allocated (including
// RootSector itself) and would eventually hand them back out,
// silently overwriting live data.
func Open(dev disk.Device, nslots int) (*FileSystem, error) {
	capacity := dev.Capacity()
	cache := bcache.New(dev, nslots)

	free, err := loadFreeMap(cache, capacity)
	if err != nil {
		return nil, err
	}
	inodes := inode.NewLayer(cache, free)
	return &FileSystem{Disk: dev, Free: free, Cache: cache, Inodes: inodes}, nil
}

// persistFreeMap writes the free map's current bitmap out to its
// reserved sector run.
func (fs *FileSystem) persistFreeMap() error {
	raw := fs.Free.Encode()
	for i := 0; i*disk.SectorSize < len(raw); i++ {
		start := i * disk.SectorSize
		end := start + disk.SectorSize
		if end > len(raw) {
			end = len(raw)
		}
		var buf [disk.SectorSize]byte
		copy(buf[:], raw[start:end])

		sector := freeMapBaseSector + uint32(i)
		if _, err := fs.Cache.Write(sector, buf[:], disk.SectorSize, 0); err != nil {
			return fmt.Errorf("fsys: persist free map sector %d: %w", sector, err)
		}
	}
	return nil
}

// loadFreeMap reconstructs a free map of the given capacity from the
// sectors it was last persisted to.
func loadFreeMap(cache *bcache.Cache, capacity uint32) (*freemap.Map, error) {
	n := freeMapSectorCount(capacity)
	raw := make([]byte, 0, n*disk.SectorSize)
	for i := 0; i < n; i++ {
		var buf [disk.SectorSize]byte
		sector := freeMapBaseSector + uint32(i)
		if _, err := cache.Read(sector, buf[:], disk.SectorSize, 0); err != nil {
			return nil, fmt.Errorf("fsys: load free map sector %d: %w", sector, err)
		}
		raw = append(raw, buf[:]...)
	}
	return freemap.Load(capacity, raw), nil
}

// Root opens the root directory inode.
func (fs *FileSystem) Root() (*inode.Handle, error) {
	return fs.Inodes.Open(RootSector)
}

// FirstUnreservedSector returns the lowest sector number Format leaves
// free for a caller to place its own inodes directly, for tools (like
// cmd/fsdemo) that address a sector without going through
// fs.Free.AllocateOne first.
func FirstUnreservedSector(capacity uint32) uint32 {
	return freeMapBaseSector + uint32(freeMapSectorCount(capacity))
}

// FlushAll persists the free map's current bitmap, then writes back
// every dirty cache slot, fanning the per-slot writebacks out across a
// small worker pool via errgroup instead of flushing strictly
// slot-by-slot, the way the teacher's own concurrency tests fan
// parallel FUSE operations out across goroutines. Each slot has its
// own lock, so disjoint slots can be flushed in parallel safely.
func (fs *FileSystem) FlushAll() error {
	if err := fs.persistFreeMap(); err != nil {
		return err
	}

	const fanout = 8
	var g errgroup.Group
	g.SetLimit(fanout)
	for i := 0; i < fs.Cache.NumSlots(); i++ {
		i := i
		g.Go(func() error {
			return fs.Cache.FlushSlotAt(i)
		})
	}
	return g.Wait()
}

// Close persists the free map, flushes every dirty slot, and releases
// the backing device.
func (fs *FileSystem) Close() error {
	if err := fs.FlushAll(); err != nil {
		return err
	}
	return fs.Disk.Close()
}

// Stats bundles cache and free-map statistics for reporting.
type Stats struct {
	Cache bcache.Snapshot
	Free  uint32
}

// Stats returns a snapshot of the cache counters and free-sector count.
func (fs *FileSystem) Stats() Stats {
	return Stats{Cache: fs.Cache.Stats(), Free: fs.Free.FreeCount()}
}
