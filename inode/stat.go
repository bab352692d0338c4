package inode

// Stat bundles the three facts callers most often want together about
// an open inode: its length, whether it is a directory, and how many
// times it is currently open.
type Stat struct {
	Length    int64
	IsDir     bool
	OpenCount int
}

// Stat returns a snapshot of h's current length, directory flag, and
// open count.
func (h *Handle) Stat() (Stat, error) {
	length, err := h.Length()
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		Length:    length,
		IsDir:     h.IsDir(),
		OpenCount: h.OpenCount(),
	}, nil
}
