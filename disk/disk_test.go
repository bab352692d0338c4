package disk

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestMemDeviceRoundTrip(t *testing.T) {
	d := NewMemDevice(16)
	want := bytes.Repeat([]byte{0xAB}, SectorSize)
	if err := d.WriteSector(5, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	got := make([]byte, SectorSize)
	if err := d.ReadSector(5, got); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch")
	}
}

func TestMemDeviceRejectsSectorZero(t *testing.T) {
	d := NewMemDevice(4)
	buf := make([]byte, SectorSize)
	if err := d.ReadSector(0, buf); err != ErrInvalidSector {
		t.Fatalf("ReadSector(0) = %v, want ErrInvalidSector", err)
	}
	if err := d.WriteSector(0, buf); err != ErrInvalidSector {
		t.Fatalf("WriteSector(0) = %v, want ErrInvalidSector", err)
	}
}

func TestMemDeviceRejectsOutOfRange(t *testing.T) {
	d := NewMemDevice(4)
	buf := make([]byte, SectorSize)
	if err := d.ReadSector(4, buf); err != ErrInvalidSector {
		t.Fatalf("ReadSector(capacity) = %v, want ErrInvalidSector", err)
	}
}

func TestFileDeviceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	d, err := CreateFileDevice(path, 8)
	if err != nil {
		t.Fatalf("CreateFileDevice: %v", err)
	}
	defer d.Close()

	want := bytes.Repeat([]byte{0x42}, SectorSize)
	if err := d.WriteSector(3, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	got := make([]byte, SectorSize)
	if err := d.ReadSector(3, got); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch")
	}

	d.Close()
	reopened, err := OpenFileDevice(path, 8)
	if err != nil {
		t.Fatalf("OpenFileDevice: %v", err)
	}
	defer reopened.Close()
	got2 := make([]byte, SectorSize)
	if err := reopened.ReadSector(3, got2); err != nil {
		t.Fatalf("ReadSector after reopen: %v", err)
	}
	if !bytes.Equal(got2, want) {
		t.Fatalf("persisted data mismatch after reopen")
	}
}
