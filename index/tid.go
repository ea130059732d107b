package index

import (
	"encoding/binary"
	"fmt"
	"math"
)

const TID_SIZE = 8

// INVALID_TID marks an unused tid slot of an entry.
var INVALID_TID = TID{Page: math.MaxUint32, Slot: math.MaxUint32}

// TID addresses a tuple by the page it lives on and its slot in that page.
type TID struct {
	Page uint32
	Slot uint32
}

func (t TID) IsValid() bool {
	return t != INVALID_TID
}

func (t TID) String() string {
	if !t.IsValid() {
		return "(invalid)"
	}
	return fmt.Sprintf("(%d,%d)", t.Page, t.Slot)
}

func (t TID) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf, t.Page)
	binary.LittleEndian.PutUint32(buf[4:], t.Slot)
}

func decodeTid(buf []byte) TID {
	return TID{
		Page: binary.LittleEndian.Uint32(buf),
		Slot: binary.LittleEndian.Uint32(buf[4:]),
	}
}
