package buffer

import (
	"fmt"
	"strings"
)

// Policy selects the replacement strategy of a BufferpoolManager.
type Policy int

const (
	// LRU evicts the frame that was unfixed longest ago.
	LRU Policy = iota
	// FIRST_FIT evicts the unpinned frame with the lowest index. Frames at the
	// end of the pool may never be evicted.
	FIRST_FIT
)

func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "", "lru":
		return LRU, nil
	case "first_fit", "firstfit", "random":
		return FIRST_FIT, nil
	default:
		return LRU, fmt.Errorf("unknown replacement policy %q", name)
	}
}

func (p Policy) String() string {
	switch p {
	case LRU:
		return "lru"
	case FIRST_FIT:
		return "first_fit"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

func newReplacer(policy Policy, capacity int) replacer {
	switch policy {
	case FIRST_FIT:
		return newBitmapReplacer(capacity)
	default:
		return NewLruReplacer(capacity)
	}
}

// replacer tracks the bound frames nobody holds. Only those are eviction
// candidates.
type replacer interface {
	// unpin makes frameId a candidate, as the most recently unfixed one.
	unpin(frameId int)
	// pin withdraws frameId from the candidates.
	pin(frameId int)
	// victim picks a candidate and withdraws it.
	victim() (int, bool)
	size() int
}
