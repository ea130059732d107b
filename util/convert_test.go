package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string
	Count int
}

func TestConvert(t *testing.T) {
	t.Run("pads encoded value to the requested size", func(t *testing.T) {
		data, err := ToByteSlice(sample{Name: "idx", Count: 3}, 64)
		require.NoError(t, err)
		assert.Len(t, data, 64)

		res, err := ToStruct[sample](data)
		require.NoError(t, err)
		assert.Equal(t, sample{Name: "idx", Count: 3}, res)
	})

	t.Run("rejects values larger than size", func(t *testing.T) {
		_, err := ToByteSlice(sample{Name: "a rather long name that will not fit"}, 4)
		assert.ErrorIs(t, err, ErrShortBlock)
	})

	t.Run("reports decode errors", func(t *testing.T) {
		_, err := ToStruct[sample]([]byte{0xc1})
		assert.Error(t, err)
	})
}

func TestSeqdbError(t *testing.T) {
	err := NewError(ErrKeyNotFound, "remove key %d", 7)

	assert.Equal(t, "remove key 7: key not found", err.Error())
	assert.True(t, errors.Is(err, ErrKeyNotFound))

	var target *SeqdbError
	assert.True(t, errors.As(error(err), &target))
}
