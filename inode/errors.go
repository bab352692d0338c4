package inode

import "errors"

// Sentinel errors for the taxonomy of spec.md §7. ErrTooLarge is
// declared in translate.go alongside the code path that raises it
// most often.
var (
	// ErrBadMagic is raised when an on-disk inode's magic field
	// doesn't match Magic (spec.md §7 Unrecoverable: corrupt inode).
	ErrBadMagic = errors.New("inode: bad magic, corrupt inode")
)
