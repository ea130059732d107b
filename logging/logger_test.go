package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	t.Run("writes json records with context", func(t *testing.T) {
		require.NoError(t, Close())
		t.Cleanup(func() { _ = Close() })

		var buf bytes.Buffer
		require.NoError(t, Init(Config{Level: LevelDebug, Format: "json", Writer: &buf}))

		WithBlock("idx.db", 3).Debug("block fixed", "mode", "SHARED")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "block fixed", rec["msg"])
		assert.Equal(t, "idx.db", rec["file"])
		assert.Equal(t, float64(3), rec["block"])
	})

	t.Run("init twice fails", func(t *testing.T) {
		require.NoError(t, Close())
		t.Cleanup(func() { _ = Close() })

		require.NoError(t, Init(Config{Writer: &bytes.Buffer{}}))
		assert.Error(t, Init(Config{Writer: &bytes.Buffer{}}))
	})

	t.Run("get logger initialises lazily", func(t *testing.T) {
		require.NoError(t, Close())
		assert.False(t, IsInitialized())

		assert.NotNil(t, GetLogger())
		assert.True(t, IsInitialized())
	})

	t.Run("parses levels", func(t *testing.T) {
		assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
		assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
		assert.Equal(t, slog.LevelError, ParseLevel("error"))
		assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
	})
}
