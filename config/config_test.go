package config

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		cfg := Default()
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, DEFAULT_BLOCK_SIZE, cfg.BlockSize)
		assert.Equal(t, POLICY_LRU, cfg.ReplacementPolicy)
	})

	t.Run("loads yaml over defaults", func(t *testing.T) {
		file := path.Join(t.TempDir(), "seqdb.yaml")
		content := "data_dir: /tmp/seqdb\nbuffer_frames: 8\nreplacement_policy: first_fit\nlog:\n  level: debug\n"
		require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

		cfg, err := Load(file)
		require.NoError(t, err)

		assert.Equal(t, "/tmp/seqdb", cfg.DataDir)
		assert.Equal(t, 8, cfg.BufferFrames)
		assert.Equal(t, POLICY_FIRST_FIT, cfg.ReplacementPolicy)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, DEFAULT_BLOCK_SIZE, cfg.BlockSize)
		assert.Equal(t, DEFAULT_MAX_TIDS_PER_ENTRY, cfg.MaxTidsPerEntry)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		file := path.Join(t.TempDir(), "seqdb.yaml")
		require.NoError(t, os.WriteFile(file, []byte("replacement_policy: clock\n"), 0o644))

		_, err := Load(file)
		assert.Error(t, err)

		cfg := Default()
		cfg.BufferFrames = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(path.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
