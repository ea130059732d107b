package buffer

import (
	"math/bits"
	"sync"
)

func newBitmapReplacer(capacity int) *bitmapReplacer {
	return &bitmapReplacer{
		bitMap: make([]uint64, capacity/64+1),
	}
}

func (r *bitmapReplacer) unpin(frameId int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bitMap[frameId/64] |= 1 << (frameId % 64)
}

func (r *bitmapReplacer) pin(frameId int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bitMap[frameId/64] &^= 1 << (frameId % 64)
}

// victim returns the first unpinned frame.
func (r *bitmapReplacer) victim() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, word := range r.bitMap {
		if word == 0 {
			continue
		}

		bit := bits.TrailingZeros64(word)
		r.bitMap[i] &^= 1 << bit
		return i*64 + bit, true
	}

	return INVALID_FRAME_ID, false
}

func (r *bitmapReplacer) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, word := range r.bitMap {
		n += bits.OnesCount64(word)
	}
	return n
}

// bitmapReplacer keeps one bit per frame: set means unpinned.
type bitmapReplacer struct {
	mu     sync.Mutex
	bitMap []uint64
}
