package freemap

import "testing"

func TestAllocateReleaseRoundTrip(t *testing.T) {
	m := New(8)
	if got := m.FreeCount(); got != 7 {
		t.Fatalf("FreeCount() = %d, want 7", got)
	}
	s, err := m.AllocateOne()
	if err != nil {
		t.Fatalf("AllocateOne: %v", err)
	}
	if s == 0 {
		t.Fatalf("AllocateOne returned reserved sector 0")
	}
	if got := m.FreeCount(); got != 6 {
		t.Fatalf("FreeCount() after allocate = %d, want 6", got)
	}
	m.Release(s)
	if got := m.FreeCount(); got != 7 {
		t.Fatalf("FreeCount() after release = %d, want 7", got)
	}
}

func TestAllocateExhaustion(t *testing.T) {
	m := New(4) // sector 0 reserved, 3 allocatable
	for i := 0; i < 3; i++ {
		if _, err := m.AllocateOne(); err != nil {
			t.Fatalf("AllocateOne #%d: %v", i, err)
		}
	}
	if _, err := m.AllocateOne(); err != ErrNoSpace {
		t.Fatalf("AllocateOne on exhausted map = %v, want ErrNoSpace", err)
	}
}

func TestDoubleFreePanics(t *testing.T) {
	m := New(4)
	s, _ := m.AllocateOne()
	m.Release(s)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on double free")
		}
	}()
	m.Release(s)
}

func TestReserveExcludesSectorFromAllocation(t *testing.T) {
	m := New(8)
	if err := m.Reserve(3); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	for i := 0; i < 6; i++ {
		s, err := m.AllocateOne()
		if err != nil {
			break
		}
		if s == 3 {
			t.Fatalf("AllocateOne returned reserved sector 3")
		}
	}
}

func TestReserveTwiceFails(t *testing.T) {
	m := New(8)
	if err := m.Reserve(3); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := m.Reserve(3); err == nil {
		t.Fatal("second Reserve of the same sector: expected error, got nil")
	}
}

func TestEncodeLoadRoundTrip(t *testing.T) {
	m := New(200)
	var allocated []uint32
	for i := 0; i < 10; i++ {
		s, err := m.AllocateOne()
		if err != nil {
			t.Fatalf("AllocateOne: %v", err)
		}
		allocated = append(allocated, s)
	}
	if err := m.Reserve(150); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	raw := m.Encode()
	loaded := Load(200, raw)

	if got, want := loaded.FreeCount(), m.FreeCount(); got != want {
		t.Fatalf("FreeCount() after Load = %d, want %d", got, want)
	}
	for _, s := range allocated {
		if !loaded.isSet(s) {
			t.Fatalf("sector %d lost its allocated state across Encode/Load", s)
		}
	}
	if !loaded.isSet(150) {
		t.Fatal("reserved sector 150 lost its allocated state across Encode/Load")
	}
	if !loaded.isSet(0) {
		t.Fatal("sector 0 should remain reserved across Encode/Load")
	}
}

func TestLoadWithShortRawTreatsMissingWordsAsFree(t *testing.T) {
	m := New(128) // two 64-bit words; only sector 0 (in word 0) is used
	raw := m.Encode()[:8]
	loaded := Load(128, raw)
	if got, want := loaded.FreeCount(), uint32(127); got != want {
		t.Fatalf("FreeCount() = %d, want %d (word 1 omitted from raw, should read as all-free)", got, want)
	}
}

func TestReleaseRestoresExactFreeCount(t *testing.T) {
	m := New(16)
	allocated := make([]uint32, 0, 10)
	for i := 0; i < 10; i++ {
		s, err := m.AllocateOne()
		if err != nil {
			t.Fatalf("AllocateOne: %v", err)
		}
		allocated = append(allocated, s)
	}
	for _, s := range allocated {
		m.Release(s)
	}
	if got := m.FreeCount(); got != 15 {
		t.Fatalf("FreeCount() = %d, want 15", got)
	}
}
