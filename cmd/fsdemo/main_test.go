package main

import (
	"path/filepath"
	"testing"
)

func TestFormatWriteReadRoundTrip(t *testing.T) {
	image := filepath.Join(t.TempDir(), "fs.img")

	if err := runFormat([]string{"-image", image, "-sectors", "512"}); err != nil {
		t.Fatalf("runFormat: %v", err)
	}

	if err := runWrite([]string{"-image", image, "-sector", "10", "-data", "hello world", "-offset", "0"}); err != nil {
		t.Fatalf("runWrite: %v", err)
	}

	if err := runStat([]string{"-image", image}); err != nil {
		t.Fatalf("runStat: %v", err)
	}

	if err := runRead([]string{"-image", image, "-sector", "10", "-offset", "0", "-length", "11"}); err != nil {
		t.Fatalf("runRead: %v", err)
	}

	if err := runRemove([]string{"-image", image, "-sector", "10"}); err != nil {
		t.Fatalf("runRemove: %v", err)
	}

	// The write/read/remove above went through openImage -> fsys.Open,
	// a separate session from the one that formatted the image. The
	// root directory inode at RootSector must still be intact.
	fsy, err := openImage(image, 0)
	if err != nil {
		t.Fatalf("openImage: %v", err)
	}
	defer fsy.Close()
	root, err := fsy.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if !root.IsDir() {
		t.Fatal("root inode IsDir() = false after runWrite/runRead/runRemove, want true")
	}
}

func TestBenchRunsConcurrentWriters(t *testing.T) {
	image := filepath.Join(t.TempDir(), "fs.img")

	if err := runFormat([]string{"-image", image, "-sectors", "4096"}); err != nil {
		t.Fatalf("runFormat: %v", err)
	}
	if err := runBench([]string{"-image", image, "-sector", "10", "-writers", "4", "-per-writer", "20"}); err != nil {
		t.Fatalf("runBench: %v", err)
	}
}
