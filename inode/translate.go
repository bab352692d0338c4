package inode

import (
	"errors"

	"github.com/patinaos/filesys/bcache"
	"github.com/patinaos/filesys/disk"
)

// ErrTooLarge is returned when a requested offset/length exceeds
// MaxFileSize (spec.md §7 TooLarge).
var ErrTooLarge = errors.New("inode: file too large")

// dataBlockNumber returns the 1-based data-block number for byte
// offset pos (spec.md §4.2).
func dataBlockNumber(pos int64) int64 {
	return pos/disk.SectorSize + 1
}

// byteToSector translates data-block number n to a physical sector,
// reading indirect/doubly-indirect metadata blocks through c as
// needed. Returns sector 0 ("hole") if the corresponding pointer is
// unallocated, or ErrTooLarge if n is out of range.
func byteToSector(c *bcache.Cache, d *onDiskInode, n int64) (uint32, error) {
	switch {
	case n < 1 || n > MaxSectors:
		return 0, ErrTooLarge

	case n <= DirectCount:
		return d.Direct[n-1], nil

	case n <= DirectCount+IndirectPtrs:
		if d.Indirect == 0 {
			return 0, nil
		}
		blk, err := readIndirectBlock(c, d.Indirect)
		if err != nil {
			return 0, err
		}
		return blk[n-DirectCount-1], nil

	default:
		if d.DoublyIndirect == 0 {
			return 0, nil
		}
		rem := n - DirectCount - IndirectPtrs - 1
		idx1 := rem / IndirectPtrs
		idx2 := rem % IndirectPtrs

		top, err := readIndirectBlock(c, d.DoublyIndirect)
		if err != nil {
			return 0, err
		}
		l2sector := top[idx1]
		if l2sector == 0 {
			return 0, nil
		}
		blk, err := readIndirectBlock(c, l2sector)
		if err != nil {
			return 0, err
		}
		return blk[idx2], nil
	}
}

func readIndirectBlock(c *bcache.Cache, sector uint32) (indirectBlock, error) {
	var buf [disk.SectorSize]byte
	if _, err := c.Read(sector, buf[:], disk.SectorSize, 0); err != nil {
		return indirectBlock{}, err
	}
	return decodeIndirectBlock(buf[:]), nil
}

func writeIndirectBlock(c *bcache.Cache, sector uint32, blk *indirectBlock) error {
	buf := blk.encode()
	_, err := c.Write(sector, buf[:], disk.SectorSize, 0)
	return err
}
