package index

import (
	"fmt"
	"strings"

	"github.com/jobala/seqdb/buffer"
	"github.com/jobala/seqdb/storage/disk"
	"github.com/jobala/seqdb/util"
)

// Index maps keys to the tids of the tuples holding them.
type Index interface {
	InitializeIndex() error
	Find(key Key) ([]TID, error)
	Insert(key Key, tid TID) error
	Remove(key Key, tids []TID) error
	Close() error
}

// Kind selects an Index implementation.
type Kind int

const (
	SEQUENTIAL Kind = iota
)

func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "", "seq", "sequential":
		return SEQUENTIAL, nil
	default:
		return SEQUENTIAL, util.NewError(util.ErrUnknownKind, "%q", name)
	}
}

func (k Kind) String() string {
	switch k {
	case SEQUENTIAL:
		return "sequential"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type Options struct {
	AttrType        AttrType
	Mode            Mode
	Unique          bool
	MaxTidsPerEntry int
}

func New(kind Kind, pool *buffer.BufferpoolManager, file *disk.File, opts Options) (Index, error) {
	switch kind {
	case SEQUENTIAL:
		idx, err := NewSeqIndex(pool, file, opts.AttrType, opts.Mode, opts.Unique, opts.MaxTidsPerEntry)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, util.NewError(util.ErrUnknownKind, "%s", kind)
	}
}

// FindRange returns the tids of every key in [start, stop] in key order.
func (idx *SeqIndex) FindRange(start, stop Key) (tids []TID, err error) {
	if err := idx.begin(start); err != nil {
		return nil, err
	}
	if err := idx.checkKey(stop); err != nil {
		return nil, err
	}
	defer func() { err = idx.end(err) }()

	tids = []TID{}
	if start.Compare(stop) > 0 {
		return tids, nil
	}

	_, blockNo, err := idx.findFirstPage(start)
	if err != nil {
		return nil, err
	}

	cnt, err := idx.pool.GetBlockCount(idx.file)
	if err != nil {
		return nil, err
	}

	for done := false; !done && blockNo < cnt; blockNo++ {
		page, err := idx.readPage(blockNo, cnt, buffer.LOCK_SHARED)
		if err != nil {
			return nil, err
		}

		for _, e := range page.entries {
			if e.key.Compare(stop) > 0 {
				done = true
				break
			}
			if e.key.Compare(start) >= 0 {
				tids = append(tids, e.tids...)
			}
		}
	}
	return tids, nil
}

// BatchInsert inserts every pair and stops at the first failure.
func (idx *SeqIndex) BatchInsert(keys []Key, tids []TID) error {
	if len(keys) != len(tids) {
		return fmt.Errorf("%d keys for %d tids", len(keys), len(tids))
	}

	for i, key := range keys {
		if err := idx.Insert(key, tids[i]); err != nil {
			return err
		}
	}
	return nil
}
