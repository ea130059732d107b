package buffer

import (
	"fmt"

	"github.com/jobala/seqdb/storage/disk"
)

func newHandle(frame *frame, caller Caller, bpm *BufferpoolManager) *Handle {
	return &Handle{
		bpm:     bpm,
		frameId: frame.id,
		gen:     frame.gen,
		caller:  caller,
		file:    frame.file,
		blockNo: frame.blockNo,
	}
}

// GetData returns the block bytes. The slice belongs to the pool and must not
// be used after the handle is unfixed.
func (h *Handle) GetData() []byte {
	return h.bpm.frames[h.frameId].data
}

func (h *Handle) BlockNo() uint32 {
	return h.blockNo
}

func (h *Handle) File() *disk.File {
	return h.file
}

func (h *Handle) Caller() Caller {
	return h.caller
}

// Mode returns the mode the handle's caller holds on the frame.
func (h *Handle) Mode() LockMode {
	h.bpm.mu.Lock()
	defer h.bpm.mu.Unlock()

	if h.released || h.bpm.frames[h.frameId].gen != h.gen {
		return LOCK_FREE
	}
	return h.bpm.frames[h.frameId].modeOf(h.caller)
}

// SetModified marks the block for write back.
func (h *Handle) SetModified() {
	h.bpm.mu.Lock()
	defer h.bpm.mu.Unlock()

	if f, err := h.bpm.frameOf(h); err == nil {
		f.modified = true
	}
}

// SetDirty marks the block content invalid. It is discarded once the last
// holder unfixes it and is never written back.
func (h *Handle) SetDirty() {
	h.bpm.mu.Lock()
	defer h.bpm.mu.Unlock()

	if f, err := h.bpm.frameOf(h); err == nil {
		f.dirty = true
		f.modified = false
	}
}

func (h *Handle) Modified() bool {
	h.bpm.mu.Lock()
	defer h.bpm.mu.Unlock()

	f, err := h.bpm.frameOf(h)
	return err == nil && f.modified
}

func (h *Handle) Dirty() bool {
	h.bpm.mu.Lock()
	defer h.bpm.mu.Unlock()

	f, err := h.bpm.frameOf(h)
	return err == nil && f.dirty
}

// Drop unfixes the block.
func (h *Handle) Drop() error {
	if h == nil {
		return nil
	}
	return h.bpm.UnfixBlock(h)
}

func (h *Handle) String() string {
	return fmt.Sprintf("%s:%d caller=%d", h.file.Name(), h.blockNo, h.caller)
}

// Handle is the capability for one fix of a block. It stays valid until it
// is unfixed or the frame is discarded.
type Handle struct {
	bpm      *BufferpoolManager
	frameId  int
	gen      uint64
	caller   Caller
	file     *disk.File
	blockNo  uint32
	released bool
}
