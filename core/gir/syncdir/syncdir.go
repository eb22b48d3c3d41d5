package syncdir

// SyncDir is the direction of a token wait. AfterWrite waits for
// the whole operation, AfterRead only for its sources to be read.
type SyncDir int

func (this SyncDir) String() string {
	switch this {
	case AfterRead:
		return "src"
	case AfterWrite:
		return "dst"
	}
	return "?"
}

const (
	InvalidDir SyncDir = iota
	AfterRead
	AfterWrite
)

// Stronger returns the direction that satisfies both a and b
func Stronger(a, b SyncDir) SyncDir {
	if a == AfterWrite || b == AfterWrite {
		return AfterWrite
	}
	return AfterRead
}
