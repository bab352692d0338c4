package inode

import (
	"fmt"

	"github.com/patinaos/filesys/bcache"
	"github.com/patinaos/filesys/disk"
	"github.com/patinaos/filesys/freemap"
)

func ceilSectors(length int64) int64 {
	if length <= 0 {
		return 0
	}
	return (length + disk.SectorSize - 1) / disk.SectorSize
}

// extendTo grows d to cover newLength bytes, per spec.md §4.2. On
// success d is mutated in place and its Length field is updated; the
// caller is responsible for persisting d. On failure d is left
// byte-identical and every sector this call allocated has already
// been released.
func extendTo(c *bcache.Cache, fm *freemap.Map, d *onDiskInode, newLength int64) error {
	if newLength <= int64(d.Length) {
		return nil
	}
	if newLength > MaxFileSize {
		return ErrTooLarge
	}

	oldSectors := ceilSectors(int64(d.Length))
	newSectors := ceilSectors(newLength)

	plan, err := planExtension(c, d, oldSectors, newSectors)
	if err != nil {
		return err
	}

	total := plan.dataCount + plan.metaCount()
	scratch := make([]uint32, 0, total)
	for i := 0; i < total; i++ {
		s, err := fm.AllocateOne()
		if err != nil {
			for _, released := range scratch {
				fm.Release(released)
			}
			return fmt.Errorf("inode: extend to %d bytes: %w", newLength, err)
		}
		scratch = append(scratch, s)
	}

	orig := *d
	if err := consumeExtension(c, d, oldSectors, newSectors, scratch); err != nil {
		*d = orig
		for _, s := range scratch {
			fm.Release(s)
		}
		return err
	}

	d.Length = uint32(newLength)
	return nil
}

// extensionPlan is the Δdata/Δmeta computation of spec.md §4.2 step 2-3.
type extensionPlan struct {
	dataCount      int
	needIndirect   bool
	needDoublyTop  bool
	newLevel2Idx   []int64 // distinct idx1 values requiring a fresh level-2 block
}

func (p extensionPlan) metaCount() int {
	n := len(p.newLevel2Idx)
	if p.needIndirect {
		n++
	}
	if p.needDoublyTop {
		n++
	}
	return n
}

func planExtension(c *bcache.Cache, d *onDiskInode, oldSectors, newSectors int64) (extensionPlan, error) {
	plan := extensionPlan{dataCount: int(newSectors - oldSectors)}

	if newSectors > DirectCount {
		plan.needIndirect = d.Indirect == 0
	}

	const doublyBase = DirectCount + IndirectPtrs
	if newSectors > doublyBase {
		plan.needDoublyTop = d.DoublyIndirect == 0

		var top indirectBlock
		if d.DoublyIndirect != 0 {
			var err error
			top, err = readIndirectBlock(c, d.DoublyIndirect)
			if err != nil {
				return extensionPlan{}, err
			}
		}

		rangeStart := oldSectors + 1
		if rangeStart <= doublyBase {
			rangeStart = doublyBase + 1
		}
		seen := map[int64]bool{}
		for n := rangeStart; n <= newSectors; n++ {
			idx1 := (n - doublyBase - 1) / IndirectPtrs
			if seen[idx1] {
				continue
			}
			seen[idx1] = true
			if top[idx1] == 0 {
				plan.newLevel2Idx = append(plan.newLevel2Idx, idx1)
			}
		}
	}

	return plan, nil
}

// consumeExtension fills d's pointer tree from the pre-allocated
// scratch list, in the order spec.md §4.2 step 5 specifies: direct,
// then indirect, then doubly-indirect. Every data sector drawn from
// scratch is zero-filled through the cache before being linked in.
func consumeExtension(c *bcache.Cache, d *onDiskInode, oldSectors, newSectors int64, scratch []uint32) error {
	var zero [disk.SectorSize]byte
	next := 0
	pop := func() uint32 {
		s := scratch[next]
		next++
		return s
	}
	zeroFill := func(sector uint32) error {
		_, err := c.Write(sector, zero[:], disk.SectorSize, 0)
		return err
	}

	directEnd := newSectors
	if directEnd > DirectCount {
		directEnd = DirectCount
	}
	for n := oldSectors + 1; n <= directEnd; n++ {
		s := pop()
		if err := zeroFill(s); err != nil {
			return err
		}
		d.Direct[n-1] = s
	}

	if newSectors <= DirectCount {
		return nil
	}

	if d.Indirect == 0 {
		d.Indirect = pop()
		var empty indirectBlock
		if err := writeIndirectBlock(c, d.Indirect, &empty); err != nil {
			return err
		}
	}
	indirectEnd := newSectors
	if indirectEnd > DirectCount+IndirectPtrs {
		indirectEnd = DirectCount + IndirectPtrs
	}
	indirectStart := oldSectors + 1
	if indirectStart <= DirectCount {
		indirectStart = DirectCount + 1
	}
	if indirectStart <= indirectEnd {
		blk, err := readIndirectBlock(c, d.Indirect)
		if err != nil {
			return err
		}
		for n := indirectStart; n <= indirectEnd; n++ {
			s := pop()
			if err := zeroFill(s); err != nil {
				return err
			}
			blk[n-DirectCount-1] = s
		}
		if err := writeIndirectBlock(c, d.Indirect, &blk); err != nil {
			return err
		}
	}

	const doublyBase = DirectCount + IndirectPtrs
	if newSectors <= doublyBase {
		return nil
	}

	if d.DoublyIndirect == 0 {
		d.DoublyIndirect = pop()
		var empty indirectBlock
		if err := writeIndirectBlock(c, d.DoublyIndirect, &empty); err != nil {
			return err
		}
	}
	top, err := readIndirectBlock(c, d.DoublyIndirect)
	if err != nil {
		return err
	}

	doublyStart := oldSectors + 1
	if doublyStart <= doublyBase {
		doublyStart = doublyBase + 1
	}

	var curIdx1 int64 = -1
	var curBlock indirectBlock
	flushCurrent := func() error {
		if curIdx1 < 0 {
			return nil
		}
		return writeIndirectBlock(c, top[curIdx1], &curBlock)
	}

	for n := doublyStart; n <= newSectors; n++ {
		rem := n - doublyBase - 1
		idx1 := rem / IndirectPtrs
		idx2 := rem % IndirectPtrs

		if idx1 != curIdx1 {
			if err := flushCurrent(); err != nil {
				return err
			}
			if top[idx1] == 0 {
				top[idx1] = pop()
				curBlock = indirectBlock{}
			} else {
				curBlock, err = readIndirectBlock(c, top[idx1])
				if err != nil {
					return err
				}
			}
			curIdx1 = idx1
		}

		s := pop()
		if err := zeroFill(s); err != nil {
			return err
		}
		curBlock[idx2] = s
	}
	if err := flushCurrent(); err != nil {
		return err
	}
	return writeIndirectBlock(c, d.DoublyIndirect, &top)
}
