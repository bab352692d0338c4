// Package inode implements the indexed-allocation inode layer of
// spec.md §4.2: on-disk inode records with direct, indirect, and
// doubly-indirect sector pointers, sector translation, on-demand
// extension, and an in-memory open-inode registry with reference
// counting and deny-write support.
package inode

import (
	"encoding/binary"

	"github.com/patinaos/filesys/disk"
)

// Layout constants from spec.md §3/§6.
const (
	Magic = 0x494e4f44 // "INOD"

	DirectCount  = 123
	IndirectPtrs = 128

	// MaxSectors is the largest 1-based data-block number this layout
	// can address: 123 direct + 128 indirect + 128*128 doubly indirect.
	MaxSectors = DirectCount + IndirectPtrs + IndirectPtrs*IndirectPtrs

	// MaxFileSize is MaxSectors worth of bytes.
	MaxFileSize = int64(MaxSectors) * disk.SectorSize
)

// onDiskInode mirrors the 512-byte on-disk record of spec.md §6:
//
//	4  length
//	4  magic
//	4*123 direct
//	4  indirect
//	4  doubly_indirect
//	1  is_dir
//	padding to 512
type onDiskInode struct {
	Length         uint32
	Magic          uint32
	Direct         [DirectCount]uint32
	Indirect       uint32
	DoublyIndirect uint32
	IsDir          bool
}

// encode serializes d into a full disk.SectorSize-byte sector.
func (d *onDiskInode) encode() [disk.SectorSize]byte {
	var buf [disk.SectorSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], d.Length)
	binary.LittleEndian.PutUint32(buf[4:8], d.Magic)
	off := 8
	for i := 0; i < DirectCount; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], d.Direct[i])
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], d.Indirect)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], d.DoublyIndirect)
	off += 4
	if d.IsDir {
		buf[off] = 1
	}
	return buf
}

// decodeInode deserializes a full sector into an onDiskInode.
func decodeInode(buf []byte) onDiskInode {
	var d onDiskInode
	d.Length = binary.LittleEndian.Uint32(buf[0:4])
	d.Magic = binary.LittleEndian.Uint32(buf[4:8])
	off := 8
	for i := 0; i < DirectCount; i++ {
		d.Direct[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	d.Indirect = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	d.DoublyIndirect = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	d.IsDir = buf[off] != 0
	return d
}

// indirectBlock is 128 consecutive 32-bit sector numbers (spec.md §6).
type indirectBlock [IndirectPtrs]uint32

func (b *indirectBlock) encode() [disk.SectorSize]byte {
	var buf [disk.SectorSize]byte
	for i, p := range b {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], p)
	}
	return buf
}

func decodeIndirectBlock(buf []byte) indirectBlock {
	var b indirectBlock
	for i := range b {
		b[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return b
}
