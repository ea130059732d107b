package seqdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jobala/seqdb/buffer"
	"github.com/jobala/seqdb/config"
	"github.com/jobala/seqdb/index"
	"github.com/jobala/seqdb/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB(t *testing.T) {
	t.Run("index contents survive reopening the database", func(t *testing.T) {
		cfg := testConfig(t)

		db, err := Open(cfg)
		require.NoError(t, err)
		require.NoError(t, db.CreateIndex("city.idx", index.VARCHAR, false))

		idx, err := db.OpenIndex("city.idx", index.WRITE)
		require.NoError(t, err)
		for i, city := range []string{"oslo", "lima", "rome", "lima", "kyiv"} {
			require.NoError(t, idx.Insert(index.VarcharKey(city), index.TID{Page: uint32(i)}))
		}
		require.NoError(t, idx.Close())
		require.NoError(t, db.Close())

		db, err = Open(cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		idx, err = db.OpenIndex("city.idx", index.READ)
		require.NoError(t, err)
		defer idx.Close()

		tids, err := idx.Find(index.VarcharKey("lima"))
		require.NoError(t, err)
		assert.Equal(t, []index.TID{{Page: 1}, {Page: 3}}, tids)
	})

	t.Run("an index is created once", func(t *testing.T) {
		db := openTestDB(t, testConfig(t))

		require.NoError(t, db.CreateIndex("id.idx", index.INT, true))
		assert.ErrorIs(t, db.CreateIndex("id.idx", index.INT, true), util.ErrIndexExists)
	})

	t.Run("failed creation leaves no file behind", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.BlockSize = 64
		db := openTestDB(t, cfg)

		assert.ErrorIs(t, db.CreateIndex("name.idx", index.VARCHAR, false), util.ErrPageTooSmall)
		assert.NoError(t, db.CreateIndex("name.idx", index.INT, true))
	})

	t.Run("opening a missing index fails", func(t *testing.T) {
		db := openTestDB(t, testConfig(t))

		_, err := db.OpenIndex("missing.idx", index.READ)
		assert.ErrorIs(t, err, util.ErrFileNotFound)
	})

	t.Run("open indexes cannot be dropped", func(t *testing.T) {
		db := openTestDB(t, testConfig(t))
		require.NoError(t, db.CreateIndex("id.idx", index.INT, true))

		idx, err := db.OpenIndex("id.idx", index.WRITE)
		require.NoError(t, err)
		assert.ErrorIs(t, db.DropIndex("id.idx"), util.ErrBlockLocked)

		require.NoError(t, idx.Close())
		require.NoError(t, db.DropIndex("id.idx"))

		_, err = db.OpenIndex("id.idx", index.READ)
		assert.ErrorIs(t, err, util.ErrFileNotFound)
	})

	t.Run("indexes are read with the block size they were written with", func(t *testing.T) {
		cfg := testConfig(t)

		db, err := Open(cfg)
		require.NoError(t, err)
		require.NoError(t, db.CreateIndex("id.idx", index.INT, true))
		require.NoError(t, db.Close())

		cfg.BlockSize = 512
		db = openTestDB(t, cfg)

		_, err = db.OpenIndex("id.idx", index.READ)
		assert.ErrorIs(t, err, util.ErrMetaMismatch)
	})

	t.Run("closing reports indexes left open", func(t *testing.T) {
		db, err := Open(testConfig(t))
		require.NoError(t, err)
		require.NoError(t, db.CreateIndex("id.idx", index.INT, true))

		_, err = db.OpenIndex("id.idx", index.WRITE)
		require.NoError(t, err)

		assert.ErrorIs(t, db.Close(), util.ErrBlockLocked)
	})

	t.Run("configuration is loaded from yaml", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "seqdb.yaml")
		yaml := "data_dir: " + filepath.Join(dir, "data") + "\nbuffer_frames: 4\nreplacement_policy: first_fit\n"
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

		cfg, err := config.Load(path)
		require.NoError(t, err)
		db := openTestDB(t, cfg)

		assert.Equal(t, buffer.FIRST_FIT, db.Pool().Policy())
		assert.Equal(t, 4, db.Pool().Size())
		assert.Equal(t, config.DEFAULT_BLOCK_SIZE, db.Pool().BlockSize())
	})
}

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.BufferFrames = 8
	cfg.Log.Output = filepath.Join(cfg.DataDir, "seqdb.log")
	return cfg
}

func openTestDB(t *testing.T, cfg config.Config) *DB {
	t.Helper()

	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
