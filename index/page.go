package index

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/jobala/seqdb/util"
)

// PAGE_HEADER_SIZE is the entry count stored at the start of every page.
const PAGE_HEADER_SIZE = 4

// A page is laid out as
//
//	uint32 entryCount
//	entryCount * [key][tidsPerEntry * TID]
//
// Unused tid slots hold INVALID_TID. All integers are little endian.
type seqPage struct {
	attrType     AttrType
	tidsPerEntry int
	entries      []entry
}

type entry struct {
	key  Key
	tids []TID
}

func entrySize(attrType AttrType, tidsPerEntry int) int {
	return attrType.Size() + TID_SIZE*tidsPerEntry
}

func entryCount(data []byte) int {
	return int(binary.LittleEndian.Uint32(data))
}

func decodePage(data []byte, attrType AttrType, tidsPerEntry int) (*seqPage, error) {
	size := entrySize(attrType, tidsPerEntry)
	count := entryCount(data)
	if PAGE_HEADER_SIZE+count*size > len(data) {
		return nil, util.NewError(util.ErrCorruptPage, "%d entries do not fit into %d bytes", count, len(data))
	}

	page := &seqPage{
		attrType:     attrType,
		tidsPerEntry: tidsPerEntry,
		entries:      make([]entry, count),
	}

	off := PAGE_HEADER_SIZE
	for i := range count {
		key, err := DecodeKey(attrType, data[off:])
		if err != nil {
			return nil, err
		}

		tids := make([]TID, 0, tidsPerEntry)
		for slot := range tidsPerEntry {
			tid := decodeTid(data[off+attrType.Size()+slot*TID_SIZE:])
			if !tid.IsValid() {
				break
			}
			tids = append(tids, tid)
		}

		page.entries[i] = entry{key: key, tids: tids}
		off += size
	}

	return page, nil
}

// encode writes the page into data and zeroes the unused tail.
func (p *seqPage) encode(data []byte) error {
	size := entrySize(p.attrType, p.tidsPerEntry)
	if PAGE_HEADER_SIZE+len(p.entries)*size > len(data) {
		return util.NewError(util.ErrCorruptPage, "%d entries do not fit into %d bytes", len(p.entries), len(data))
	}

	binary.LittleEndian.PutUint32(data, uint32(len(p.entries)))

	off := PAGE_HEADER_SIZE
	for _, e := range p.entries {
		if err := writeEntry(data[off:off+size], p.attrType, p.tidsPerEntry, e); err != nil {
			return err
		}
		off += size
	}

	clear(data[off:])
	return nil
}

func (p *seqPage) firstKey() Key {
	return p.entries[0].key
}

func (p *seqPage) lastKey() Key {
	return p.entries[len(p.entries)-1].key
}

func (p *seqPage) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "entries=%d", len(p.entries))
	for _, e := range p.entries {
		fmt.Fprintf(&sb, " %s%v", e.key, e.tids)
	}
	return sb.String()
}

// insertEntryAt shifts the entries from pos on one slot to the right and
// writes a new entry holding key and tid at pos. The caller makes sure the
// page has room for one more entry.
func insertEntryAt(data []byte, pos int, attrType AttrType, tidsPerEntry int, key Key, tid TID) error {
	size := entrySize(attrType, tidsPerEntry)
	count := entryCount(data)
	if pos > count || PAGE_HEADER_SIZE+(count+1)*size > len(data) {
		return util.NewError(util.ErrCorruptPage, "insert at %d of %d entries", pos, count)
	}

	from := PAGE_HEADER_SIZE + pos*size
	end := PAGE_HEADER_SIZE + count*size
	copy(data[from+size:end+size], data[from:end])

	if err := writeEntry(data[from:from+size], attrType, tidsPerEntry, entry{key: key, tids: []TID{tid}}); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(data, uint32(count+1))
	return nil
}

func writeEntry(buf []byte, attrType AttrType, tidsPerEntry int, e entry) error {
	if len(e.tids) > tidsPerEntry {
		return fmt.Errorf("entry %s holds %d tids, at most %d fit", e.key, len(e.tids), tidsPerEntry)
	}
	if err := e.key.Encode(buf); err != nil {
		return err
	}

	off := attrType.Size()
	for slot := range tidsPerEntry {
		tid := INVALID_TID
		if slot < len(e.tids) {
			tid = e.tids[slot]
		}
		tid.encode(buf[off+slot*TID_SIZE:])
	}
	return nil
}
