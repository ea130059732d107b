package buffer

import (
	"fmt"
	"sync/atomic"
)

// LockMode is the access a caller holds on a fixed frame. Modes are ordered
// by strength so the stronger of two grants can be kept.
type LockMode int

const (
	LOCK_FREE LockMode = iota
	LOCK_SHARED
	LOCK_INTENTION_WRITE
	LOCK_EXCLUSIVE
)

func (m LockMode) String() string {
	switch m {
	case LOCK_FREE:
		return "FREE"
	case LOCK_SHARED:
		return "SHARED"
	case LOCK_INTENTION_WRITE:
		return "INTENTION_WRITE"
	case LOCK_EXCLUSIVE:
		return "EXCLUSIVE"
	default:
		return fmt.Sprintf("LockMode(%d)", int(m))
	}
}

// compatibleWith reports whether m may be granted while another caller holds
// held.
func (m LockMode) compatibleWith(held LockMode) bool {
	switch m {
	case LOCK_SHARED:
		return held != LOCK_EXCLUSIVE
	case LOCK_INTENTION_WRITE:
		return held == LOCK_FREE || held == LOCK_SHARED
	case LOCK_EXCLUSIVE:
		return held == LOCK_FREE
	default:
		return false
	}
}

// Caller identifies a lock holder. Grants are tracked per caller, so two
// goroutines sharing a Caller share their locks.
type Caller uint64

var lastCaller atomic.Uint64

func NewCaller() Caller {
	return Caller(lastCaller.Add(1))
}
