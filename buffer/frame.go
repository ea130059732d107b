package buffer

import (
	"fmt"

	"github.com/jobala/seqdb/storage/disk"
	"github.com/jobala/seqdb/util"
)

func newFrame(id, blockSize int) *frame {
	return &frame{
		id:      id,
		data:    make([]byte, blockSize),
		holders: map[Caller]*grant{},
	}
}

func (f *frame) bind(file *disk.File, blockNo uint32) {
	f.file = file
	f.blockNo = blockNo
}

func (f *frame) isBound() bool {
	return f.file != nil
}

func (f *frame) isUnlocked() bool {
	return len(f.holders) == 0
}

func (f *frame) compatible(caller Caller, mode LockMode) bool {
	for c, g := range f.holders {
		if c == caller {
			continue
		}
		if !mode.compatibleWith(g.mode) {
			return false
		}
	}
	return true
}

// grant adds one grant of mode for caller. A caller fixing a frame it already
// holds keeps the stronger of both modes and must unfix once per fix.
func (f *frame) grant(caller Caller, mode LockMode) bool {
	if mode == LOCK_FREE || !f.compatible(caller, mode) {
		return false
	}

	g, ok := f.holders[caller]
	if !ok {
		f.holders[caller] = &grant{mode: mode, count: 1}
	} else {
		g.count++
		g.mode = max(g.mode, mode)
	}

	f.recompute()
	return true
}

func (f *frame) release(caller Caller) error {
	g, ok := f.holders[caller]
	if !ok {
		return util.NewError(util.ErrNotHeld, "release %s", f)
	}

	g.count--
	if g.count == 0 {
		delete(f.holders, caller)
	}

	f.recompute()
	return nil
}

func (f *frame) upgrade(caller Caller) (bool, error) {
	g, ok := f.holders[caller]
	if !ok {
		return false, util.NewError(util.ErrNotHeld, "upgrade %s", f)
	}
	if !f.compatible(caller, LOCK_EXCLUSIVE) {
		return false, nil
	}

	g.mode = LOCK_EXCLUSIVE
	f.recompute()
	return true, nil
}

func (f *frame) downgrade(caller Caller, mode LockMode) error {
	g, ok := f.holders[caller]
	if !ok {
		return util.NewError(util.ErrNotHeld, "downgrade %s", f)
	}
	if mode == LOCK_FREE || mode == LOCK_EXCLUSIVE {
		return fmt.Errorf("cannot downgrade to %s", mode)
	}

	g.mode = min(g.mode, mode)
	f.recompute()
	return nil
}

func (f *frame) modeOf(caller Caller) LockMode {
	if g, ok := f.holders[caller]; ok {
		return g.mode
	}
	return LOCK_FREE
}

func (f *frame) recompute() {
	f.mode = LOCK_FREE
	for _, g := range f.holders {
		f.mode = max(f.mode, g.mode)
	}
}

// reset unbinds the frame and invalidates every handle issued for it.
func (f *frame) reset() {
	f.file = nil
	f.blockNo = 0
	f.mode = LOCK_FREE
	f.modified = false
	f.dirty = false
	f.gen++
	clear(f.holders)
	clear(f.data)
}

func (f *frame) key() frameKey {
	return frameKey{file: f.file.Name(), blockNo: f.blockNo}
}

func (f *frame) String() string {
	if !f.isBound() {
		return fmt.Sprintf("frame %d <free>", f.id)
	}

	return fmt.Sprintf("frame %d %s:%d mode=%s modified=%t dirty=%t holders=%d",
		f.id, f.file.Name(), f.blockNo, f.mode, f.modified, f.dirty, len(f.holders))
}

type frame struct {
	id       int
	file     *disk.File
	blockNo  uint32
	data     []byte
	mode     LockMode
	holders  map[Caller]*grant
	modified bool // must be written back before reuse
	dirty    bool // content invalid, never written back
	gen      uint64
}

type grant struct {
	mode  LockMode
	count int
}

type frameKey struct {
	file    string
	blockNo uint32
}
