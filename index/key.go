package index

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jobala/seqdb/util"
)

// AttrType is the type of the indexed attribute. It fixes the encoded key
// size of every entry.
type AttrType int

const (
	INT AttrType = iota
	DOUBLE
	VARCHAR
)

const VARCHAR_SIZE = 30

func ParseAttrType(name string) (AttrType, error) {
	switch strings.ToUpper(name) {
	case "INT", "INTEGER":
		return INT, nil
	case "DOUBLE":
		return DOUBLE, nil
	case "VARCHAR":
		return VARCHAR, nil
	default:
		return INT, util.NewError(util.ErrKeyType, "unknown attribute type %q", name)
	}
}

// Size returns the number of bytes a key of this type occupies on a page.
func (a AttrType) Size() int {
	switch a {
	case INT:
		return 4
	case DOUBLE:
		return 8
	case VARCHAR:
		return VARCHAR_SIZE
	default:
		return 0
	}
}

func (a AttrType) String() string {
	switch a {
	case INT:
		return "INT"
	case DOUBLE:
		return "DOUBLE"
	case VARCHAR:
		return "VARCHAR"
	default:
		return fmt.Sprintf("AttrType(%d)", int(a))
	}
}

// Key is an attribute value. Keys are only compared with keys of the same
// type.
type Key interface {
	Type() AttrType
	Compare(other Key) int
	// Encode writes the key into the first Type().Size() bytes of buf.
	Encode(buf []byte) error
	String() string
}

func DecodeKey(attrType AttrType, data []byte) (Key, error) {
	if len(data) < attrType.Size() {
		return nil, util.NewError(util.ErrCorruptPage, "%d bytes for a %s key", len(data), attrType)
	}

	switch attrType {
	case INT:
		return IntKey(int32(binary.LittleEndian.Uint32(data))), nil
	case DOUBLE:
		return DoubleKey(math.Float64frombits(binary.LittleEndian.Uint64(data))), nil
	case VARCHAR:
		return VarcharKey(bytes.TrimRight(data[:VARCHAR_SIZE], "\x00")), nil
	default:
		return nil, util.NewError(util.ErrKeyType, "decode %s", attrType)
	}
}

type IntKey int32

func (k IntKey) Type() AttrType { return INT }

func (k IntKey) Compare(other Key) int {
	return cmp.Compare(k, other.(IntKey))
}

func (k IntKey) Encode(buf []byte) error {
	binary.LittleEndian.PutUint32(buf, uint32(k))
	return nil
}

func (k IntKey) String() string {
	return strconv.Itoa(int(k))
}

type DoubleKey float64

func (k DoubleKey) Type() AttrType { return DOUBLE }

func (k DoubleKey) Compare(other Key) int {
	return cmp.Compare(k, other.(DoubleKey))
}

func (k DoubleKey) Encode(buf []byte) error {
	binary.LittleEndian.PutUint64(buf, math.Float64bits(float64(k)))
	return nil
}

func (k DoubleKey) String() string {
	return strconv.FormatFloat(float64(k), 'g', -1, 64)
}

// VarcharKey is stored zero padded to VARCHAR_SIZE bytes, so trailing zero
// bytes are not significant.
type VarcharKey string

func (k VarcharKey) Type() AttrType { return VARCHAR }

func (k VarcharKey) Compare(other Key) int {
	return strings.Compare(strings.TrimRight(string(k), "\x00"), strings.TrimRight(string(other.(VarcharKey)), "\x00"))
}

func (k VarcharKey) Encode(buf []byte) error {
	if len(k) > VARCHAR_SIZE {
		return util.NewError(util.ErrKeyTooLong, "%d bytes", len(k))
	}

	n := copy(buf, k)
	clear(buf[n:VARCHAR_SIZE])
	return nil
}

func (k VarcharKey) String() string {
	return strconv.Quote(string(k))
}
