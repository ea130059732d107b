package index

import (
	"github.com/jobala/seqdb/util"
)

// Meta describes the layout of an index file. It is stored next to the file
// so the file is never read with a different layout than it was written with.
type Meta struct {
	Kind         Kind
	AttrType     AttrType
	Unique       bool
	TidsPerEntry int
	BlockSize    int
}

func NewMeta(kind Kind, opts Options, blockSize int) Meta {
	tidsPerEntry := 1
	if !opts.Unique {
		tidsPerEntry = opts.MaxTidsPerEntry
		if tidsPerEntry <= 0 {
			tidsPerEntry = DEFAULT_MAX_TIDS_PER_ENTRY
		}
	}

	return Meta{
		Kind:         kind,
		AttrType:     opts.AttrType,
		Unique:       opts.Unique,
		TidsPerEntry: tidsPerEntry,
		BlockSize:    blockSize,
	}
}

func (m Meta) Encode() ([]byte, error) {
	return util.ToByteSlice(m, 0)
}

func DecodeMeta(data []byte) (Meta, error) {
	return util.ToStruct[Meta](data)
}

// Options returns the options that reopen the index in mode.
func (m Meta) Options(mode Mode) Options {
	return Options{
		AttrType:        m.AttrType,
		Mode:            mode,
		Unique:          m.Unique,
		MaxTidsPerEntry: m.TidsPerEntry,
	}
}

// Check fails with ErrMetaMismatch if an index described by m cannot be
// read with the given block size.
func (m Meta) Check(blockSize int) error {
	if m.BlockSize != blockSize {
		return util.NewError(util.ErrMetaMismatch, "index written with %d byte blocks, pool uses %d", m.BlockSize, blockSize)
	}
	if m.AttrType.Size() == 0 {
		return util.NewError(util.ErrMetaMismatch, "unknown attribute type %d", int(m.AttrType))
	}
	if m.TidsPerEntry <= 0 || (m.Unique && m.TidsPerEntry != 1) {
		return util.NewError(util.ErrMetaMismatch, "%d tids per entry, unique=%t", m.TidsPerEntry, m.Unique)
	}
	return nil
}
