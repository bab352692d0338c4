package fsys

import (
	"testing"

	"github.com/patinaos/filesys/disk"
)

func newTestFS(t *testing.T, capacity uint32) *FileSystem {
	t.Helper()
	dev := disk.NewMemDevice(capacity)
	fs, err := Format(dev, 16)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	return fs
}

func TestFormatCreatesRootDirectory(t *testing.T) {
	fs := newTestFS(t, 2000)

	root, err := fs.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if !root.IsDir() {
		t.Fatal("root inode IsDir() = false, want true")
	}
	if root.Sector() != RootSector {
		t.Fatalf("root Sector() = %d, want %d", root.Sector(), RootSector)
	}
}

func TestFormatRejectsUndersizedDevice(t *testing.T) {
	dev := disk.NewMemDevice(1)
	if _, err := Format(dev, 16); err == nil {
		t.Fatal("Format over a 1-sector device: expected error, got nil")
	}
}

func TestFormatExcludesRootSectorFromAllocation(t *testing.T) {
	fs := newTestFS(t, 10)
	for i := 0; i < 20; i++ {
		s, err := fs.Free.AllocateOne()
		if err != nil {
			break
		}
		if s == RootSector {
			t.Fatalf("AllocateOne returned reserved root sector %d", RootSector)
		}
	}
}

func TestFlushAllWritesBackDirtySlots(t *testing.T) {
	fs := newTestFS(t, 2000)

	h, err := fs.Inodes.Open(RootSector)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := h.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	if err := fs.FlushAll(); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}

	stats := fs.Stats()
	if stats.Cache.DiskWrites == 0 {
		t.Fatal("FlushAll: expected at least one disk write, got 0")
	}
}

// TestOpenRestoresFreeMapAcrossSessions reproduces the scenario where
// Format creates the root directory inode, the process exits, and a
// later Open allocates a new inode: the new inode must never land on
// RootSector, which only holds if Open restores the free map's prior
// allocation state instead of rebuilding a fresh one.
func TestOpenRestoresFreeMapAcrossSessions(t *testing.T) {
	dev := disk.NewMemDevice(2000)
	fs, err := Format(dev, 16)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fs2, err := Open(dev, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fs2.Close()

	const sector = 10
	if _, err := fs2.Inodes.Create(sector, 0, false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	h, err := fs2.Inodes.Open(sector)
	if err != nil {
		t.Fatalf("Open inode: %v", err)
	}
	if _, err := h.WriteAt([]byte("hello world"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	root, err := fs2.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if !root.IsDir() {
		t.Fatal("root inode IsDir() = false after a write to another inode, want true (root sector was overwritten)")
	}
}

func TestStatsReflectFreeSectors(t *testing.T) {
	fs := newTestFS(t, 2000)
	before := fs.Stats().Free

	h, err := fs.Inodes.Open(RootSector)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := h.WriteAt(make([]byte, disk.SectorSize*5), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	after := fs.Stats().Free
	if after >= before {
		t.Fatalf("Free sectors after growth = %d, want < %d", after, before)
	}
}
