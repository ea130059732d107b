package buffer

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jobala/seqdb/logging"
	"github.com/jobala/seqdb/storage/disk"
	"github.com/jobala/seqdb/util"
	"golang.org/x/sync/errgroup"
)

const SHUTDOWN_FLUSH_WORKERS = 8

func NewBufferpoolManager(size int, policy Policy, diskScheduler *disk.DiskScheduler) *BufferpoolManager {
	blockSize := diskScheduler.FileManager().BlockSize()
	frames := make([]*frame, size)
	freeFrames := make([]int, size)

	for i := range size {
		frames[i] = newFrame(i, blockSize)
		freeFrames[i] = i
	}

	bpm := &BufferpoolManager{
		frames:        frames,
		pageTable:     make(map[frameKey]int),
		replacer:      newReplacer(policy, size),
		policy:        policy,
		diskScheduler: diskScheduler,
		freeFrames:    freeFrames,
		log:           logging.WithComponent("bufferpool"),
	}
	bpm.cond = sync.NewCond(&bpm.mu)
	return bpm
}

// FixBlock makes blockNo of file resident and grants mode to caller. While
// the mode conflicts with other holders it waits, without timeout, for an
// unfix or downgrade. It fails with ErrBufferExhausted when the block is not
// resident and every frame is held.
func (b *BufferpoolManager) FixBlock(caller Caller, file *disk.File, blockNo uint32, mode LockMode) (*Handle, error) {
	h, _, err := b.fix(caller, file, blockNo, mode, true, true)
	return h, err
}

// TryFixBlock is FixBlock without waiting: a mode conflict yields ok == false
// and no error.
func (b *BufferpoolManager) TryFixBlock(caller Caller, file *disk.File, blockNo uint32, mode LockMode) (h *Handle, ok bool, err error) {
	return b.fix(caller, file, blockNo, mode, true, false)
}

// FixEmptyBlock fixes blockNo exclusively without reading it; the frame
// starts zeroed.
func (b *BufferpoolManager) FixEmptyBlock(caller Caller, file *disk.File, blockNo uint32) (*Handle, error) {
	h, _, err := b.fix(caller, file, blockNo, LOCK_EXCLUSIVE, false, true)
	return h, err
}

// FixNewBlock appends a block to file and fixes it exclusively.
func (b *BufferpoolManager) FixNewBlock(caller Caller, file *disk.File) (*Handle, error) {
	fm := b.diskScheduler.FileManager()

	blockNo, err := fm.AppendBlock(file)
	if err != nil {
		return nil, err
	}

	h, _, err := b.fix(caller, file, blockNo, LOCK_EXCLUSIVE, false, true)
	if err != nil {
		if shrinkErr := fm.SetBlockCount(file, blockNo); shrinkErr != nil {
			b.log.Error("failed to undo block append", "file", file.Name(), "block", blockNo, "error", shrinkErr)
		}
		return nil, err
	}
	return h, nil
}

func (b *BufferpoolManager) fix(caller Caller, file *disk.File, blockNo uint32, mode LockMode, read, wait bool) (*Handle, bool, error) {
	if mode == LOCK_FREE {
		return nil, false, fmt.Errorf("cannot fix %s:%d in mode %s", file.Name(), blockNo, mode)
	}

	key := frameKey{file: file.Name(), blockNo: blockNo}

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if id, ok := b.pageTable[key]; ok {
			frame := b.frames[id]

			if frame.grant(caller, mode) {
				b.replacer.pin(id)
				if !read {
					clear(frame.data)
				}
				return newHandle(frame, caller, b), true, nil
			}

			if !wait {
				return nil, false, nil
			}

			// an unfix or downgrade will broadcast
			b.cond.Wait()
			continue
		}

		id, err := b.allocateFrame()
		if err != nil {
			return nil, false, err
		}

		frame := b.frames[id]
		frame.bind(file, blockNo)
		b.pageTable[key] = id

		if read {
			resp := b.diskScheduler.Do(disk.NewRequest(file, blockNo, nil, false))
			if resp.Err != nil {
				b.discard(frame)
				return nil, false, resp.Err
			}
			copy(frame.data, resp.Data)
		}

		frame.grant(caller, mode)
		return newHandle(frame, caller, b), true, nil
	}
}

// allocateFrame returns an unbound frame, evicting the replacer's victim when
// no frame is free. Must be called with b.mu held.
func (b *BufferpoolManager) allocateFrame() (int, error) {
	if len(b.freeFrames) > 0 {
		id := b.freeFrames[0]
		b.freeFrames = b.freeFrames[1:]
		return id, nil
	}

	id, ok := b.replacer.victim()
	if !ok {
		b.log.Warn("buffer exhausted", "frames", len(b.frames), "policy", b.policy)
		return INVALID_FRAME_ID, util.NewError(util.ErrBufferExhausted, "all %d frames are fixed", len(b.frames))
	}

	frame := b.frames[id]
	if err := b.flush(frame); err != nil {
		b.replacer.unpin(id)
		return INVALID_FRAME_ID, err
	}

	b.log.Debug("evicting block", "file", frame.file.Name(), "block", frame.blockNo, "frame", id)
	delete(b.pageTable, frame.key())
	frame.reset()
	return id, nil
}

// UnfixBlock releases one grant. A frame nobody holds any more is discarded
// if dirty, otherwise it stays cached as the most recently unfixed candidate.
func (b *BufferpoolManager) UnfixBlock(h *Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, err := b.frameOf(h)
	if err != nil {
		return err
	}

	if err := frame.release(h.caller); err != nil {
		return err
	}
	h.released = true

	if frame.isUnlocked() {
		if frame.dirty {
			b.log.Debug("discarding dirty block", "file", frame.file.Name(), "block", frame.blockNo)
			b.discard(frame)
		} else {
			b.replacer.unpin(frame.id)
		}
	}

	b.cond.Broadcast()
	return nil
}

// UpgradeToExclusive waits until the handle's caller is the only holder and
// then makes its grant exclusive. Two callers upgrading the same shared frame
// wait for each other forever.
func (b *BufferpoolManager) UpgradeToExclusive(h *Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		frame, err := b.frameOf(h)
		if err != nil {
			return err
		}

		ok, err := frame.upgrade(h.caller)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		b.cond.Wait()
	}
}

func (b *BufferpoolManager) DowngradeToShared(h *Handle) error {
	return b.Downgrade(h, LOCK_SHARED)
}

// Downgrade lowers the caller's grant to mode; a weaker current grant is
// left untouched.
func (b *BufferpoolManager) Downgrade(h *Handle, mode LockMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, err := b.frameOf(h)
	if err != nil {
		return err
	}

	if err := frame.downgrade(h.caller, mode); err != nil {
		return err
	}

	b.cond.Broadcast()
	return nil
}

// FlushBlock writes the block back now if it is modified.
func (b *BufferpoolManager) FlushBlock(h *Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, err := b.frameOf(h)
	if err != nil {
		return err
	}
	return b.flush(frame)
}

func (b *BufferpoolManager) IsBlockOfFileOpen(file *disk.File) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, frame := range b.frames {
		if frame.isBound() && frame.file.Name() == file.Name() {
			return true
		}
	}
	return false
}

// CloseAllOpenBlocks writes back and frees every frame of file. Nothing is
// freed if any of them is still held.
func (b *BufferpoolManager) CloseAllOpenBlocks(file *disk.File) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frames := b.framesOf(file.Name())
	for _, frame := range frames {
		if !frame.isUnlocked() {
			return util.NewError(util.ErrBlockLocked, "close %s", frame)
		}
	}

	for _, frame := range frames {
		if err := b.flush(frame); err != nil {
			return err
		}
		b.discard(frame)
	}
	return nil
}

func (b *BufferpoolManager) GetBlockCount(file *disk.File) (uint32, error) {
	return b.diskScheduler.FileManager().BlockCount(file)
}

// SetBlockCount resizes file. Cached blocks beyond the new end are dropped
// without write back; it fails if one of them is held.
func (b *BufferpoolManager) SetBlockCount(file *disk.File, cnt uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var beyond []*frame
	for _, frame := range b.framesOf(file.Name()) {
		if frame.blockNo < cnt {
			continue
		}
		if !frame.isUnlocked() {
			return util.NewError(util.ErrBlockLocked, "truncate %s", frame)
		}
		beyond = append(beyond, frame)
	}

	for _, frame := range beyond {
		b.discard(frame)
	}
	return b.diskScheduler.FileManager().SetBlockCount(file, cnt)
}

func (b *BufferpoolManager) CreateFile(name string) error {
	return b.diskScheduler.FileManager().CreateFile(name)
}

func (b *BufferpoolManager) OpenFile(name string) (*disk.File, error) {
	return b.diskScheduler.FileManager().OpenFile(name)
}

// CloseFile closes one reference to file. The cached blocks are written back
// and freed when the last reference goes.
func (b *BufferpoolManager) CloseFile(file *disk.File) error {
	fm := b.diskScheduler.FileManager()

	if fm.Refs(file) == 1 {
		if err := b.CloseAllOpenBlocks(file); err != nil {
			return err
		}
	}
	return fm.CloseFile(file)
}

// DropFile removes the file; its cached blocks are dropped without write back.
func (b *BufferpoolManager) DropFile(name string) error {
	b.mu.Lock()
	frames := b.framesOf(name)
	for _, frame := range frames {
		if !frame.isUnlocked() {
			b.mu.Unlock()
			return util.NewError(util.ErrBlockLocked, "drop %s", frame)
		}
	}
	for _, frame := range frames {
		b.discard(frame)
	}
	b.mu.Unlock()

	return b.diskScheduler.FileManager().DropFile(name)
}

// Shutdown writes back every modified frame, drops dirty ones and empties
// the pool. It reports every failed write and every frame that was still
// held instead of stopping at the first problem.
func (b *BufferpoolManager) Shutdown() []error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		errsMu sync.Mutex
		errs   []error
	)

	g := errgroup.Group{}
	g.SetLimit(SHUTDOWN_FLUSH_WORKERS)

	for _, frame := range b.frames {
		if !frame.isBound() {
			continue
		}

		if !frame.isUnlocked() {
			errs = append(errs, util.NewError(util.ErrBlockLocked, "shutdown with %s", frame))
		}
		if frame.dirty || !frame.modified {
			continue
		}

		g.Go(func() error {
			resp := b.diskScheduler.Do(disk.NewRequest(frame.file, frame.blockNo, frame.data, true))
			if resp.Err != nil {
				errsMu.Lock()
				errs = append(errs, fmt.Errorf("flushing %s:%d: %w", frame.file.Name(), frame.blockNo, resp.Err))
				errsMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, frame := range b.frames {
		if frame.isBound() {
			b.replacer.pin(frame.id)
			frame.reset()
		}
	}

	clear(b.pageTable)
	b.freeFrames = b.freeFrames[:0]
	for i := range b.frames {
		b.freeFrames = append(b.freeFrames, i)
	}

	if len(errs) > 0 {
		b.log.Error("shutdown finished with errors", "count", len(errs))
	}
	b.cond.Broadcast()
	return errs
}

func (b *BufferpoolManager) Size() int {
	return len(b.frames)
}

func (b *BufferpoolManager) Policy() Policy {
	return b.policy
}

func (b *BufferpoolManager) BlockSize() int {
	return b.diskScheduler.FileManager().BlockSize()
}

func (b *BufferpoolManager) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "[BufferpoolManager] policy=%s frames=%d free=%d unfixed=%d\n",
		b.policy, len(b.frames), len(b.freeFrames), b.replacer.size())
	for _, frame := range b.frames {
		sb.WriteString("\t")
		sb.WriteString(frame.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// flush writes the frame back if it is modified and not dirty.
// Must be called with b.mu held.
func (b *BufferpoolManager) flush(frame *frame) error {
	if !frame.modified || frame.dirty {
		return nil
	}

	resp := b.diskScheduler.Do(disk.NewRequest(frame.file, frame.blockNo, frame.data, true))
	if resp.Err != nil {
		return fmt.Errorf("flushing %s:%d: %w", frame.file.Name(), frame.blockNo, resp.Err)
	}

	frame.modified = false
	return nil
}

// discard unbinds the frame without write back and returns it to the free
// list. Must be called with b.mu held.
func (b *BufferpoolManager) discard(frame *frame) {
	delete(b.pageTable, frame.key())
	b.replacer.pin(frame.id)
	frame.reset()
	b.freeFrames = append(b.freeFrames, frame.id)
}

func (b *BufferpoolManager) framesOf(name string) []*frame {
	var res []*frame
	for _, frame := range b.frames {
		if frame.isBound() && frame.file.Name() == name {
			res = append(res, frame)
		}
	}
	return res
}

func (b *BufferpoolManager) frameOf(h *Handle) (*frame, error) {
	if h == nil || h.released {
		return nil, util.NewError(util.ErrStaleHandle, "handle already unfixed")
	}

	frame := b.frames[h.frameId]
	if frame.gen != h.gen {
		return nil, util.NewError(util.ErrStaleHandle, "frame %d was reused", h.frameId)
	}
	return frame, nil
}

type BufferpoolManager struct {
	mu            sync.Mutex
	cond          *sync.Cond
	frames        []*frame
	pageTable     map[frameKey]int
	diskScheduler *disk.DiskScheduler
	replacer      replacer
	policy        Policy
	freeFrames    []int
	log           *slog.Logger
}
