// File: internal/browser/downloads.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// downloadPollInterval is how often WaitForNewDownload rescans the directory.
const downloadPollInterval = 500 * time.Millisecond

// PurgeDownloads removes every regular file from the download directory. The
// directory holds exported statements with account data, so it is emptied on
// every session teardown.
func PurgeDownloads(dir string, logger *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read download directory: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove download %q: %w", entry.Name(), err)
		}
		removed++
	}
	if removed > 0 {
		logger.Debug("Purged downloads.", zap.String("dir", dir), zap.Int("removed", removed))
	}
	return nil
}

// SnapshotDownloads lists the regular files currently in the directory.
// Taken before triggering an export so the new file can be told apart.
func SnapshotDownloads(dir string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return seen, nil
		}
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			seen[entry.Name()] = struct{}{}
		}
	}
	return seen, nil
}

// WaitForNewDownload polls the download directory until a file that was not in
// the before snapshot finishes downloading, and returns its path. Chrome's
// in-progress ".crdownload" markers are skipped.
func WaitForNewDownload(ctx context.Context, dir string, before map[string]struct{}) (string, error) {
	ticker := time.NewTicker(downloadPollInterval)
	defer ticker.Stop()

	for {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to scan download directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if strings.HasSuffix(name, ".crdownload") || strings.HasSuffix(name, ".tmp") {
				continue
			}
			if _, known := before[name]; known {
				continue
			}
			return filepath.Join(dir, name), nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("no download appeared: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
