package index

import (
	"encoding/binary"
	"testing"

	"github.com/jobala/seqdb/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage(t *testing.T) {
	t.Run("encoded pages decode to the same entries", func(t *testing.T) {
		data := make([]byte, 256)
		page := &seqPage{
			attrType:     VARCHAR,
			tidsPerEntry: 3,
			entries: []entry{
				{key: VarcharKey("alpha"), tids: []TID{{1, 1}, {1, 2}, {1, 3}}},
				{key: VarcharKey("beta"), tids: []TID{{2, 7}}},
			},
		}

		require.NoError(t, page.encode(data))
		assert.Equal(t, 2, entryCount(data))

		decoded, err := decodePage(data, VARCHAR, 3)
		require.NoError(t, err)
		assert.Equal(t, page.entries, decoded.entries)

		// unused slots are terminated with the invalid tid
		off := PAGE_HEADER_SIZE + entrySize(VARCHAR, 3) + VARCHAR_SIZE + TID_SIZE
		assert.Equal(t, INVALID_TID, decodeTid(data[off:]))
	})

	t.Run("entries are laid out little endian", func(t *testing.T) {
		data := make([]byte, 64)
		page := &seqPage{
			attrType:     INT,
			tidsPerEntry: 1,
			entries:      []entry{{key: IntKey(-2), tids: []TID{{Page: 3, Slot: 4}}}},
		}
		require.NoError(t, page.encode(data))

		assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[0:]))
		assert.Equal(t, int32(-2), int32(binary.LittleEndian.Uint32(data[4:])))
		assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(data[8:]))
		assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(data[12:]))
	})

	t.Run("insert shifts later entries right", func(t *testing.T) {
		data := make([]byte, 128)
		page := &seqPage{
			attrType:     INT,
			tidsPerEntry: 2,
			entries: []entry{
				{key: IntKey(1), tids: []TID{{1, 0}}},
				{key: IntKey(5), tids: []TID{{5, 0}, {5, 1}}},
			},
		}
		require.NoError(t, page.encode(data))

		require.NoError(t, insertEntryAt(data, 1, INT, 2, IntKey(3), TID{3, 0}))
		require.NoError(t, insertEntryAt(data, 3, INT, 2, IntKey(9), TID{9, 0}))

		decoded, err := decodePage(data, INT, 2)
		require.NoError(t, err)
		assert.Equal(t, []entry{
			{key: IntKey(1), tids: []TID{{1, 0}}},
			{key: IntKey(3), tids: []TID{{3, 0}}},
			{key: IntKey(5), tids: []TID{{5, 0}, {5, 1}}},
			{key: IntKey(9), tids: []TID{{9, 0}}},
		}, decoded.entries)
	})

	t.Run("an entry count beyond the block is corrupt", func(t *testing.T) {
		data := make([]byte, 32)
		binary.LittleEndian.PutUint32(data, 10)

		_, err := decodePage(data, INT, 1)
		assert.ErrorIs(t, err, util.ErrCorruptPage)

		assert.ErrorIs(t, insertEntryAt(data, 0, INT, 1, IntKey(1), TID{}), util.ErrCorruptPage)
	})
}

func TestKey(t *testing.T) {
	t.Run("keys decode to what was encoded", func(t *testing.T) {
		for _, key := range []Key{IntKey(-7), DoubleKey(2.5), VarcharKey("hubdb")} {
			buf := make([]byte, key.Type().Size())
			require.NoError(t, key.Encode(buf))

			decoded, err := DecodeKey(key.Type(), buf)
			require.NoError(t, err)
			assert.Equal(t, 0, key.Compare(decoded), "%s", key)
		}
	})

	t.Run("varchar keys longer than the attribute size are rejected", func(t *testing.T) {
		buf := make([]byte, VARCHAR_SIZE)
		err := VarcharKey("a key that is well beyond thirty bytes").Encode(buf)
		assert.ErrorIs(t, err, util.ErrKeyTooLong)
	})

	t.Run("keys order by value", func(t *testing.T) {
		assert.Negative(t, IntKey(-1).Compare(IntKey(1)))
		assert.Positive(t, DoubleKey(1.5).Compare(DoubleKey(-3)))
		assert.Negative(t, VarcharKey("ab").Compare(VarcharKey("abc")))
		assert.Zero(t, VarcharKey("ab").Compare(VarcharKey("ab\x00")))
	})

	t.Run("attribute types parse by name", func(t *testing.T) {
		attr, err := ParseAttrType("varchar")
		require.NoError(t, err)
		assert.Equal(t, VARCHAR, attr)

		_, err = ParseAttrType("blob")
		assert.ErrorIs(t, err, util.ErrKeyType)
	})
}
