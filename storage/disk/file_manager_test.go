package disk

import (
	"os"
	"path"
	"testing"

	"github.com/jobala/seqdb/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockSize = 128

func TestFileManager(t *testing.T) {
	t.Run("creating an existing file fails", func(t *testing.T) {
		fm := NewManager(t.TempDir(), testBlockSize)

		require.NoError(t, fm.CreateFile("idx"))
		assert.ErrorIs(t, fm.CreateFile("idx"), util.ErrFileExists)
	})

	t.Run("opening a missing file fails", func(t *testing.T) {
		fm := NewManager(t.TempDir(), testBlockSize)

		_, err := fm.OpenFile("missing")
		assert.ErrorIs(t, err, util.ErrFileNotFound)
	})

	t.Run("append grows the file by one zeroed block", func(t *testing.T) {
		fm, file := CreateDbFile(t, "idx")

		for i := range 3 {
			blockNo, err := fm.AppendBlock(file)
			require.NoError(t, err)
			assert.Equal(t, uint32(i), blockNo)
		}

		cnt, err := fm.BlockCount(file)
		require.NoError(t, err)
		assert.Equal(t, uint32(3), cnt)

		buf := make([]byte, testBlockSize)
		require.NoError(t, fm.ReadBlock(file, 2, buf))
		assert.Equal(t, make([]byte, testBlockSize), buf)
	})

	t.Run("test reading and writing a block", func(t *testing.T) {
		fm, file := CreateDbFile(t, "idx")
		_, err := fm.AppendBlock(file)
		require.NoError(t, err)
		_, err = fm.AppendBlock(file)
		require.NoError(t, err)

		data := make([]byte, testBlockSize)
		copy(data, []byte("hello world"))
		require.NoError(t, fm.WriteBlock(file, 1, data))

		res := make([]byte, testBlockSize)
		require.NoError(t, fm.ReadBlock(file, 1, res))
		assert.Equal(t, data, res)

		info, err := os.Stat(path.Join(fm.dir, "idx"))
		require.NoError(t, err)
		assert.Equal(t, int64(2*testBlockSize), info.Size())
	})

	t.Run("blocks past the end are out of range", func(t *testing.T) {
		fm, file := CreateDbFile(t, "idx")

		buf := make([]byte, testBlockSize)
		assert.ErrorIs(t, fm.ReadBlock(file, 0, buf), util.ErrBlockOutOfRange)
		assert.ErrorIs(t, fm.WriteBlock(file, 0, buf), util.ErrBlockOutOfRange)
	})

	t.Run("set block count truncates", func(t *testing.T) {
		fm, file := CreateDbFile(t, "idx")
		require.NoError(t, fm.SetBlockCount(file, 4))
		require.NoError(t, fm.SetBlockCount(file, 1))

		cnt, err := fm.BlockCount(file)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), cnt)
	})

	t.Run("open is reference counted", func(t *testing.T) {
		fm, file := CreateDbFile(t, "idx")

		again, err := fm.OpenFile("idx")
		require.NoError(t, err)
		assert.Same(t, file, again)

		require.NoError(t, fm.CloseFile(again))
		_, err = fm.BlockCount(file)
		assert.NoError(t, err)

		require.NoError(t, fm.CloseFile(file))
		_, err = fm.BlockCount(file)
		assert.ErrorIs(t, err, util.ErrFileClosed)
	})

	t.Run("drop removes file and metadata", func(t *testing.T) {
		fm, _ := CreateDbFile(t, "idx")
		require.NoError(t, fm.WriteMeta("idx", []byte("meta")))

		meta, err := fm.ReadMeta("idx")
		require.NoError(t, err)
		assert.Equal(t, []byte("meta"), meta)

		require.NoError(t, fm.DropFile("idx"))
		_, err = fm.ReadMeta("idx")
		assert.ErrorIs(t, err, util.ErrFileNotFound)
		assert.ErrorIs(t, fm.DropFile("idx"), util.ErrFileNotFound)
	})
}

func CreateDbFile(t *testing.T, name string) (*FileManager, *File) {
	t.Helper()

	fm := NewManager(t.TempDir(), testBlockSize)
	require.NoError(t, fm.CreateFile(name))

	file, err := fm.OpenFile(name)
	require.NoError(t, err)
	return fm, file
}
