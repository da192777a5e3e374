// File: internal/browser/downloads_test.go
package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPurgeDownloads(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "operations.csv"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "operations (1).csv"), []byte("b"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "keepdir"), 0o700))

	require.NoError(t, PurgeDownloads(dir, zap.NewNop()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keepdir", entries[0].Name())

	// A missing directory is not an error.
	require.NoError(t, PurgeDownloads(filepath.Join(dir, "nope"), zap.NewNop()))
}

func TestWaitForNewDownload(t *testing.T) {
	t.Run("returns a file that appears after the snapshot", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "old.csv"), []byte("x"), 0o600))

		before, err := SnapshotDownloads(dir)
		require.NoError(t, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = os.WriteFile(filepath.Join(dir, "export.csv"), []byte("data"), 0o600)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		path, err := WaitForNewDownload(ctx, dir, before)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "export.csv"), path)
	})

	t.Run("ignores in progress markers", func(t *testing.T) {
		dir := t.TempDir()
		before, err := SnapshotDownloads(dir)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "export.csv.crdownload"), []byte("x"), 0o600))

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err = WaitForNewDownload(ctx, dir, before)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
