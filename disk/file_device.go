package disk

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileDevice is a Device backed by a fixed-size regular file. Sectors
// are addressed by their byte offset (sector * SectorSize); reads and
// writes use positioned I/O (pread/pwrite) rather than seek-then-
// read/write, so concurrent callers never race over the file's shared
// offset. This mirrors the teacher's own loopback and file-handle code,
// which always goes through unix.Pread/Pwrite for exactly this reason.
type FileDevice struct {
	f        *os.File
	capacity uint32
}

// CreateFileDevice creates (or truncates) path to hold capacity
// sectors and returns a FileDevice over it.
func CreateFileDevice(path string, capacity uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: create %s: %w", path, err)
	}
	if err := f.Truncate(int64(capacity) * SectorSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: truncate %s: %w", path, err)
	}
	return &FileDevice{f: f, capacity: capacity}, nil
}

// OpenFileDevice opens an existing backing file of the given capacity.
func OpenFileDevice(path string, capacity uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}
	return &FileDevice{f: f, capacity: capacity}, nil
}

func (d *FileDevice) Capacity() uint32 { return d.capacity }

func (d *FileDevice) ReadSector(sector uint32, dst []byte) error {
	if err := checkBounds(sector, d.capacity, len(dst)); err != nil {
		return err
	}
	off := int64(sector) * SectorSize
	n, err := unix.Pread(int(d.f.Fd()), dst, off)
	if err != nil {
		return fmt.Errorf("disk: pread sector %d: %w", sector, err)
	}
	if n != SectorSize {
		return fmt.Errorf("disk: short read of sector %d: got %d bytes", sector, n)
	}
	return nil
}

func (d *FileDevice) WriteSector(sector uint32, src []byte) error {
	if err := checkBounds(sector, d.capacity, len(src)); err != nil {
		return err
	}
	off := int64(sector) * SectorSize
	n, err := unix.Pwrite(int(d.f.Fd()), src, off)
	if err != nil {
		return fmt.Errorf("disk: pwrite sector %d: %w", sector, err)
	}
	if n != SectorSize {
		return fmt.Errorf("disk: short write of sector %d: got %d bytes", sector, n)
	}
	return nil
}

func (d *FileDevice) Close() error {
	return d.f.Close()
}
