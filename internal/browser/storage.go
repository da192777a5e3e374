// File: internal/browser/storage.go
package browser

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var storageJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// StorageFile persists the authentication snapshot on disk so a logged-in
// session survives process restarts.
type StorageFile struct {
	path   string
	logger *zap.Logger
}

func NewStorageFile(profileDir string, logger *zap.Logger) *StorageFile {
	return &StorageFile{
		path:   filepath.Join(profileDir, "storage_state.json"),
		logger: logger.Named("storage"),
	}
}

// Path returns the location of the snapshot file.
func (f *StorageFile) Path() string { return f.path }

// Save writes the snapshot atomically (write to temp, then rename).
func (f *StorageFile) Save(state *StorageState) error {
	if state == nil {
		return fmt.Errorf("cannot persist nil storage state")
	}
	data, err := storageJSON.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write storage state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace storage state: %w", err)
	}
	f.logger.Debug("Storage state persisted.",
		zap.Int("cookies", len(state.Cookies)),
		zap.Int("local_storage_keys", len(state.LocalStorage)))
	return nil
}

// Load reads the snapshot. A missing file is not an error and yields nil.
func (f *StorageFile) Load() (*StorageState, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read storage state: %w", err)
	}
	var state StorageState
	if err := storageJSON.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse storage state: %w", err)
	}
	return &state, nil
}

// Delete removes the snapshot. Missing file is fine.
func (f *StorageFile) Delete() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove storage state: %w", err)
	}
	return nil
}
