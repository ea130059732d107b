package index

import (
	"github.com/jobala/seqdb/buffer"
	"github.com/jobala/seqdb/util"
)

// Iterator walks every entry of the index in key order, loading one page at
// a time. Pages are only fixed while they are read, so mutating the index
// invalidates the iterator.
func (idx *SeqIndex) Iterator() *indexIterator {
	return &indexIterator{idx: idx}
}

func (it *indexIterator) Next() (Key, []TID, error) {
	if it.IsEnd() {
		if it.err != nil {
			return nil, nil, it.err
		}
		return nil, nil, util.NewError(util.ErrKeyNotFound, "iterator exhausted")
	}

	e := it.entries[it.pos]
	it.pos++
	return e.key, e.tids, nil
}

// IsEnd reports whether the iterator is exhausted or failed to load a page.
func (it *indexIterator) IsEnd() bool {
	for it.err == nil && !it.done && it.pos >= len(it.entries) {
		it.err = it.load()
	}
	return it.err != nil || it.pos >= len(it.entries)
}

func (it *indexIterator) Err() error {
	return it.err
}

func (it *indexIterator) load() error {
	if err := it.idx.checkLockStack(); err != nil {
		return err
	}

	cnt, err := it.idx.pool.GetBlockCount(it.idx.file)
	if err != nil {
		return err
	}
	if it.blockNo >= cnt {
		it.done = true
		return nil
	}

	page, err := it.idx.readPage(it.blockNo, cnt, buffer.LOCK_SHARED)
	if err != nil {
		return err
	}

	it.entries = page.entries
	it.pos = 0
	it.blockNo++
	return nil
}

type indexIterator struct {
	idx     *SeqIndex
	blockNo uint32
	entries []entry
	pos     int
	done    bool
	err     error
}
