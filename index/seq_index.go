package index

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jobala/seqdb/buffer"
	"github.com/jobala/seqdb/logging"
	"github.com/jobala/seqdb/storage/disk"
	"github.com/jobala/seqdb/util"
)

const (
	ROOT_BLOCK_NO              uint32 = 0
	DEFAULT_MAX_TIDS_PER_ENTRY        = 20
)

// Mode is the access an index is opened with.
type Mode int

const (
	READ Mode = iota
	WRITE
)

func (m Mode) String() string {
	if m == WRITE {
		return "WRITE"
	}
	return "READ"
}

// NewSeqIndex opens the sequential index stored in file, initializing the
// file if it has no blocks yet. The root page stays fixed until Close:
// SHARED for READ, INTENTION_WRITE for WRITE. A SeqIndex must only be used
// by one goroutine at a time.
func NewSeqIndex(pool *buffer.BufferpoolManager, file *disk.File, attrType AttrType, mode Mode, unique bool, maxTidsPerEntry int) (*SeqIndex, error) {
	if attrType.Size() == 0 {
		return nil, util.NewError(util.ErrKeyType, "index on %s", attrType)
	}

	tidsPerEntry := 1
	if !unique {
		tidsPerEntry = maxTidsPerEntry
		if tidsPerEntry <= 0 {
			tidsPerEntry = DEFAULT_MAX_TIDS_PER_ENTRY
		}
	}

	idx := &SeqIndex{
		pool:         pool,
		file:         file,
		attrType:     attrType,
		mode:         mode,
		unique:       unique,
		tidsPerEntry: tidsPerEntry,
		caller:       buffer.NewCaller(),
		log:          logging.WithIndex(file.Name(), unique),
	}

	if epp := idx.entriesPerPage(); epp <= 1 {
		return nil, util.NewError(util.ErrPageTooSmall, "%d entries of %d bytes per %d byte block",
			epp, entrySize(attrType, tidsPerEntry), pool.BlockSize())
	}

	cnt, err := pool.GetBlockCount(file)
	if err != nil {
		return nil, err
	}
	if cnt == 0 {
		if err := idx.InitializeIndex(); err != nil {
			return nil, err
		}
	}

	root, err := pool.FixBlock(idx.caller, file, ROOT_BLOCK_NO, idx.rootMode())
	if err != nil {
		return nil, fmt.Errorf("error fixing root of %s: %w", file.Name(), err)
	}
	idx.stack = []*buffer.Handle{root}

	idx.log.Debug("opened index", "mode", mode, "attr", attrType, "entriesPerPage", idx.entriesPerPage())
	return idx, nil
}

// InitializeIndex creates the empty root page of a file without blocks.
func (idx *SeqIndex) InitializeIndex() error {
	cnt, err := idx.pool.GetBlockCount(idx.file)
	if err != nil {
		return err
	}
	if cnt != 0 {
		return util.NewError(util.ErrIndexExists, "%s has %d blocks", idx.file.Name(), cnt)
	}

	h, err := idx.pool.FixNewBlock(idx.caller, idx.file)
	if err != nil {
		return err
	}
	h.SetModified()

	idx.log.Info("initialized index", "attr", idx.attrType, "tidsPerEntry", idx.tidsPerEntry)
	return h.Drop()
}

// Find returns every tid stored under key, in page order.
func (idx *SeqIndex) Find(key Key) (tids []TID, err error) {
	if err := idx.begin(key); err != nil {
		return nil, err
	}
	defer func() { err = idx.end(err) }()

	found, blockNo, err := idx.findFirstPage(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return []TID{}, nil
	}
	return idx.findFromPage(key, blockNo)
}

// Insert adds tid under key. A unique index refuses a second tid for a key;
// no index stores the same tid twice under one key.
func (idx *SeqIndex) Insert(key Key, tid TID) (err error) {
	if !tid.IsValid() {
		return fmt.Errorf("cannot insert %s", tid)
	}
	if err := idx.beginWrite(key); err != nil {
		return err
	}
	defer func() { err = idx.end(err) }()

	_, blockNo, err := idx.findFirstPage(key)
	if err != nil {
		return err
	}
	return idx.insertInPage(key, tid, blockNo)
}

// Remove deletes tids from key. Entries left without tids are removed and so
// are pages left without entries, unless it is the only page. If not all tids
// are found, the ones that were stay removed and ErrRemoveIncomplete is
// returned.
func (idx *SeqIndex) Remove(key Key, tids []TID) (err error) {
	if err := idx.beginWrite(key); err != nil {
		return err
	}
	defer func() { err = idx.end(err) }()

	if idx.unique && len(tids) > 1 {
		return util.NewError(util.ErrUniqueMultiRemove, "%d tids for %s", len(tids), key)
	}

	found, blockNo, err := idx.findFirstPage(key)
	if err != nil {
		return err
	}
	if !found {
		return util.NewError(util.ErrKeyNotFound, "remove %s", key)
	}
	return idx.removeFromPage(key, tids, blockNo)
}

// Close unfixes every page the index holds, the root included.
func (idx *SeqIndex) Close() error {
	var errs []error
	for i := len(idx.stack) - 1; i >= 0; i-- {
		errs = append(errs, idx.stack[i].Drop())
	}
	idx.stack = nil

	idx.log.Debug("closed index")
	return errors.Join(errs...)
}

func (idx *SeqIndex) String() string {
	return fmt.Sprintf("[SeqIndex] file=%s attr=%s mode=%s unique=%t tidsPerEntry=%d entriesPerPage=%d",
		idx.file.Name(), idx.attrType, idx.mode, idx.unique, idx.tidsPerEntry, idx.entriesPerPage())
}

func (idx *SeqIndex) entriesPerPage() int {
	return (idx.pool.BlockSize() - PAGE_HEADER_SIZE) / entrySize(idx.attrType, idx.tidsPerEntry)
}

func (idx *SeqIndex) rootMode() buffer.LockMode {
	if idx.mode == WRITE {
		return buffer.LOCK_INTENTION_WRITE
	}
	return buffer.LOCK_SHARED
}

func (idx *SeqIndex) root() *buffer.Handle {
	return idx.stack[0]
}

func (idx *SeqIndex) begin(key Key) error {
	if err := idx.checkLockStack(); err != nil {
		return err
	}
	return idx.checkKey(key)
}

// beginWrite makes the root exclusive for the whole mutation; every other
// user of the file waits at the root until end restores the opening mode.
func (idx *SeqIndex) beginWrite(key Key) error {
	if idx.mode != WRITE {
		return util.NewError(util.ErrReadOnly, "%s", idx.file.Name())
	}
	if err := idx.begin(key); err != nil {
		return err
	}

	if root := idx.root(); root.Mode() != buffer.LOCK_EXCLUSIVE {
		return idx.pool.UpgradeToExclusive(root)
	}
	return nil
}

// end leaves only the root fixed, in its opening mode, whatever err is.
func (idx *SeqIndex) end(err error) error {
	if err == nil {
		err = idx.checkLockStack()
	}

	var cleanup []error
	for len(idx.stack) > 1 {
		top := idx.stack[len(idx.stack)-1]
		idx.stack = idx.stack[:len(idx.stack)-1]
		cleanup = append(cleanup, top.Drop())
	}
	if len(idx.stack) == 1 && idx.root().Mode() != idx.rootMode() {
		cleanup = append(cleanup, idx.pool.Downgrade(idx.root(), idx.rootMode()))
	}

	if cleanupErr := errors.Join(cleanup...); cleanupErr != nil {
		if err == nil {
			return cleanupErr
		}
		idx.log.Error("failed to release pages", "error", cleanupErr)
	}
	return err
}

// checkLockStack verifies that exactly the root is fixed.
func (idx *SeqIndex) checkLockStack() error {
	if len(idx.stack) != 1 {
		return util.NewError(util.ErrLockStack, "%d pages fixed", len(idx.stack))
	}
	return nil
}

func (idx *SeqIndex) checkKey(key Key) error {
	if key == nil || key.Type() != idx.attrType {
		return util.NewError(util.ErrKeyType, "%v for a %s index", key, idx.attrType)
	}
	return key.Encode(make([]byte, idx.attrType.Size()))
}

// findFirstPage binary searches the pages by their first and last key. It
// reports whether some page may hold key and the page a forward scan for key
// starts at. When key is the first key of a page in a non unique index the
// run of equal keys may begin on an earlier page, so the search continues
// on the left.
func (idx *SeqIndex) findFirstPage(key Key) (bool, uint32, error) {
	if entryCount(idx.root().GetData()) == 0 {
		return false, ROOT_BLOCK_NO, nil
	}

	cnt, err := idx.pool.GetBlockCount(idx.file)
	if err != nil {
		return false, ROOT_BLOCK_NO, err
	}

	var (
		found      bool
		blockNo    uint32
		dupBlockNo uint32
		hasDup     bool
	)

	left, right := ROOT_BLOCK_NO, cnt
	for left < right && !found {
		blockNo = left + (right-left)/2

		page, err := idx.readPage(blockNo, cnt, buffer.LOCK_SHARED)
		if err != nil {
			return false, blockNo, err
		}

		switch {
		case key.Compare(page.firstKey()) < 0:
			right = blockNo
		case key.Compare(page.lastKey()) > 0:
			left = blockNo + 1
		case idx.unique:
			found = true
		case key.Compare(page.firstKey()) == 0 && blockNo != ROOT_BLOCK_NO:
			left, right = blockNo-1, blockNo
			dupBlockNo, hasDup = blockNo, true
		default:
			found = true
		}
	}

	if !found && hasDup {
		return true, dupBlockNo, nil
	}
	return found, blockNo, nil
}

// findFromPage collects the tids of every entry equal to key from blockNo on
// and stops at the first greater key.
func (idx *SeqIndex) findFromPage(key Key, blockNo uint32) ([]TID, error) {
	cnt, err := idx.pool.GetBlockCount(idx.file)
	if err != nil {
		return nil, err
	}

	tids := []TID{}
	for done := false; !done && blockNo < cnt; blockNo++ {
		page, err := idx.readPage(blockNo, cnt, buffer.LOCK_SHARED)
		if err != nil {
			return nil, err
		}

		for _, e := range page.entries {
			c := key.Compare(e.key)
			if c < 0 {
				done = true
				break
			}
			if c == 0 {
				tids = append(tids, e.tids...)
			}
		}
	}
	return tids, nil
}

func (idx *SeqIndex) insertInPage(key Key, tid TID, startBlockNo uint32) error {
	cnt, err := idx.pool.GetBlockCount(idx.file)
	if err != nil {
		return err
	}

	epp := idx.entriesPerPage()

	var (
		// an equal entry with a free tid slot
		appendTo   *entryRef
		insertAt   = entryRef{blockNo: startBlockNo}
		prevRoomAt *entryRef
	)

	for blockNo := startBlockNo; blockNo < cnt; blockNo++ {
		page, err := idx.readPage(blockNo, cnt, buffer.LOCK_EXCLUSIVE)
		if err != nil {
			return err
		}

		insertAt = entryRef{blockNo: blockNo, pos: len(page.entries)}
		done := false

		for i, e := range page.entries {
			c := key.Compare(e.key)
			if c < 0 {
				insertAt.pos = i
				done = true
				break
			}
			if c > 0 {
				continue
			}

			if idx.unique {
				return util.NewError(util.ErrDuplicateKey, "%s", key)
			}
			if slices.Contains(e.tids, tid) {
				return util.NewError(util.ErrDuplicateTid, "%s %s", key, tid)
			}
			if appendTo == nil && len(e.tids) < idx.tidsPerEntry {
				appendTo = &entryRef{blockNo: blockNo, pos: i}
			}
		}

		if done {
			// the end of the previous page is an equally sorted position
			// that needs no split
			if insertAt.pos == 0 && prevRoomAt != nil {
				insertAt = *prevRoomAt
			}
			break
		}

		prevRoomAt = nil
		if len(page.entries) < epp {
			prevRoomAt = &entryRef{blockNo: blockNo, pos: len(page.entries)}
		}
	}

	if appendTo != nil {
		return idx.appendTid(*appendTo, tid)
	}
	return idx.insertEntry(insertAt, key, tid)
}

func (idx *SeqIndex) appendTid(ref entryRef, tid TID) error {
	h, err := idx.fixPage(ref.blockNo, buffer.LOCK_EXCLUSIVE)
	if err != nil {
		return err
	}

	page, err := decodePage(h.GetData(), idx.attrType, idx.tidsPerEntry)
	if err != nil {
		return err
	}

	page.entries[ref.pos].tids = append(page.entries[ref.pos].tids, tid)
	if err := page.encode(h.GetData()); err != nil {
		return err
	}
	h.SetModified()

	return idx.unfixPage(h)
}

// insertEntry writes a new entry at ref, splitting the page first if it is
// full.
func (idx *SeqIndex) insertEntry(ref entryRef, key Key, tid TID) error {
	h, err := idx.fixPage(ref.blockNo, buffer.LOCK_EXCLUSIVE)
	if err != nil {
		return err
	}

	target, pos := h, ref.pos
	if entryCount(h.GetData()) >= idx.entriesPerPage() {
		target, pos, err = idx.splitPage(h, ref.pos)
		if err != nil {
			return err
		}
	}

	if err := insertEntryAt(target.GetData(), pos, idx.attrType, idx.tidsPerEntry, key, tid); err != nil {
		return err
	}
	target.SetModified()

	if target != h {
		if err := idx.unfixPage(target); err != nil {
			return err
		}
	}
	return idx.unfixPage(h)
}

// splitPage moves the upper half of the full page h into a new page right
// after it and returns the page and position the pending entry goes to. If
// that is the new page it is left fixed on top of h.
func (idx *SeqIndex) splitPage(h *buffer.Handle, pos int) (*buffer.Handle, int, error) {
	epp := idx.entriesPerPage()
	keep := epp - epp/2

	page, err := decodePage(h.GetData(), idx.attrType, idx.tidsPerEntry)
	if err != nil {
		return nil, 0, err
	}

	upper := &seqPage{
		attrType:     idx.attrType,
		tidsPerEntry: idx.tidsPerEntry,
		entries:      page.entries[keep:],
	}
	page.entries = page.entries[:keep]

	if err := page.encode(h.GetData()); err != nil {
		return nil, 0, err
	}
	h.SetModified()

	newBlockNo := h.BlockNo() + 1
	if err := idx.insertEmptyPage(newBlockNo); err != nil {
		return nil, 0, err
	}

	next, err := idx.fixPage(newBlockNo, buffer.LOCK_EXCLUSIVE)
	if err != nil {
		return nil, 0, err
	}
	if err := upper.encode(next.GetData()); err != nil {
		return nil, 0, err
	}
	next.SetModified()

	idx.log.Debug("split page", "block", h.BlockNo(), "kept", keep, "moved", len(upper.entries))

	if pos <= keep {
		return h, pos, idx.unfixPage(next)
	}
	return next, pos - keep, nil
}

// insertEmptyPage makes room for a zeroed page at blockNo by appending a
// block and copying every page from blockNo on one block to the right.
func (idx *SeqIndex) insertEmptyPage(blockNo uint32) error {
	depth := len(idx.stack)

	right, err := idx.pool.FixNewBlock(idx.caller, idx.file)
	if err != nil {
		return err
	}
	idx.push(right)

	for right.BlockNo() > blockNo {
		left, err := idx.pool.FixBlock(idx.caller, idx.file, right.BlockNo()-1, buffer.LOCK_EXCLUSIVE)
		if err != nil {
			return err
		}

		copy(right.GetData(), left.GetData())
		right.SetModified()

		if err := idx.unfixPage(right); err != nil {
			_ = left.Drop()
			return err
		}
		idx.push(left)
		right = left
	}

	clear(right.GetData())
	right.SetModified()
	if err := idx.unfixPage(right); err != nil {
		return err
	}

	return idx.checkDepth(depth)
}

func (idx *SeqIndex) removeFromPage(key Key, tids []TID, blockNo uint32) error {
	remaining := make(map[TID]struct{}, len(tids))
	for _, tid := range tids {
		remaining[tid] = struct{}{}
	}

	cnt, err := idx.pool.GetBlockCount(idx.file)
	if err != nil {
		return err
	}

	for done := false; !done && len(remaining) > 0 && blockNo < cnt; {
		h, err := idx.fixPage(blockNo, buffer.LOCK_EXCLUSIVE)
		if err != nil {
			return err
		}

		page, err := decodePage(h.GetData(), idx.attrType, idx.tidsPerEntry)
		if err != nil {
			return err
		}
		if len(page.entries) == 0 {
			return util.NewError(util.ErrCorruptPage, "empty page %d", blockNo)
		}

		modified := false
		for i := 0; i < len(page.entries) && !done && len(remaining) > 0; {
			e := &page.entries[i]

			c := key.Compare(e.key)
			if c < 0 {
				done = true
				break
			}
			if c > 0 {
				i++
				continue
			}

			before := len(e.tids)
			e.tids = slices.DeleteFunc(e.tids, func(tid TID) bool {
				_, ok := remaining[tid]
				delete(remaining, tid)
				return ok
			})
			modified = modified || len(e.tids) != before

			if len(e.tids) == 0 {
				page.entries = slices.Delete(page.entries, i, i+1)
			} else {
				i++
			}
		}

		if modified {
			if err := page.encode(h.GetData()); err != nil {
				return err
			}
			h.SetModified()
		}

		if err := idx.unfixPage(h); err != nil {
			return err
		}

		if len(page.entries) == 0 && cnt > 1 {
			if err := idx.removeEmptyPage(blockNo); err != nil {
				return err
			}
			cnt--
			continue
		}
		blockNo++
	}

	if len(remaining) > 0 {
		return util.NewError(util.ErrRemoveIncomplete, "%d tids of %s not found", len(remaining), key)
	}
	return nil
}

// removeEmptyPage copies every page after blockNo one block to the left and
// cuts the last block off the file.
func (idx *SeqIndex) removeEmptyPage(blockNo uint32) error {
	cnt, err := idx.pool.GetBlockCount(idx.file)
	if err != nil {
		return err
	}
	if cnt <= 1 {
		return nil
	}

	depth := len(idx.stack)

	left, err := idx.fixPage(blockNo, buffer.LOCK_EXCLUSIVE)
	if err != nil {
		return err
	}

	for next := blockNo + 1; next < cnt; next++ {
		right, err := idx.pool.FixBlock(idx.caller, idx.file, next, buffer.LOCK_EXCLUSIVE)
		if err != nil {
			return err
		}

		copy(left.GetData(), right.GetData())
		left.SetModified()

		if err := idx.unfixPage(left); err != nil {
			_ = right.Drop()
			return err
		}
		idx.push(right)
		left = right
	}

	// the last block is cut off, its bytes must not be written back
	left.SetDirty()
	if err := idx.unfixPage(left); err != nil {
		return err
	}

	if err := idx.pool.SetBlockCount(idx.file, cnt-1); err != nil {
		return err
	}

	idx.log.Debug("removed empty page", "block", blockNo, "blocks", cnt-1)
	return idx.checkDepth(depth)
}

// readPage decodes blockNo under a transient fix. Only the root of an index
// with a single page may be empty.
func (idx *SeqIndex) readPage(blockNo, cnt uint32, mode buffer.LockMode) (*seqPage, error) {
	h, err := idx.fixPage(blockNo, mode)
	if err != nil {
		return nil, err
	}

	page, err := decodePage(h.GetData(), idx.attrType, idx.tidsPerEntry)
	if unfixErr := idx.unfixPage(h); err == nil {
		err = unfixErr
	}
	if err != nil {
		return nil, err
	}

	if len(page.entries) == 0 && (blockNo != ROOT_BLOCK_NO || cnt > 1) {
		return nil, util.NewError(util.ErrCorruptPage, "empty page %d of %d", blockNo, cnt)
	}
	return page, nil
}

// fixPage fixes a page and pushes it onto the lock stack. The root is fixed
// for the whole lifetime of the index and is returned as is.
func (idx *SeqIndex) fixPage(blockNo uint32, mode buffer.LockMode) (*buffer.Handle, error) {
	if blockNo == ROOT_BLOCK_NO {
		return idx.root(), nil
	}

	h, err := idx.pool.FixBlock(idx.caller, idx.file, blockNo, mode)
	if err != nil {
		return nil, err
	}
	idx.push(h)
	return h, nil
}

// unfixPage unfixes the page on top of the lock stack; the root stays fixed.
func (idx *SeqIndex) unfixPage(h *buffer.Handle) error {
	if h == idx.root() {
		return nil
	}

	top := len(idx.stack) - 1
	if top < 1 || idx.stack[top] != h {
		return util.NewError(util.ErrLockStack, "unfix %s out of order", h)
	}

	idx.stack = idx.stack[:top]
	return h.Drop()
}

func (idx *SeqIndex) push(h *buffer.Handle) {
	idx.stack = append(idx.stack, h)
}

func (idx *SeqIndex) checkDepth(depth int) error {
	if len(idx.stack) != depth {
		return util.NewError(util.ErrLockStack, "%d pages fixed, expected %d", len(idx.stack), depth)
	}
	return nil
}

// SeqIndex stores key -> tid entries sorted across the pages of one file.
// The pages form a single sorted run: no page has a key smaller than a key
// on an earlier page. An equal key may span several entries and pages.
type SeqIndex struct {
	pool         *buffer.BufferpoolManager
	file         *disk.File
	attrType     AttrType
	mode         Mode
	unique       bool
	tidsPerEntry int
	caller       buffer.Caller

	// fixed pages, the root at the bottom
	stack []*buffer.Handle
	log   *slog.Logger
}

type entryRef struct {
	blockNo uint32
	pos     int
}
