package state

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// fileEntry is the on-disk envelope of one key.
type fileEntry struct {
	Key      string          `json:"key"`
	Payload  json.RawMessage `json:"payload"`
	Checksum string          `json:"checksum"`
	SavedAt  int64           `json:"savedAt"`
}

// FileBackend stores each key as a JSON file in a directory. Writes go to a
// temp file that is renamed over the target.
type FileBackend struct {
	mu      sync.RWMutex
	baseDir string
	now     func() int64
}

// NewFileBackend creates a FileBackend rooted at dir.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		dir = ".nnvisu/state"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileBackend{baseDir: dir, now: nowMillis}, nil
}

// path returns the file path for a key.
func (f *FileBackend) path(key string) string {
	// Sanitize key to prevent path traversal
	safe := strings.ReplaceAll(key, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	safe = strings.ReplaceAll(safe, "..", "_")
	return filepath.Join(f.baseDir, safe+".json")
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Get implements Backend. A file whose checksum does not match its payload
// is reported as ErrChecksumMismatch.
func (f *FileBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	if checksum(entry.Payload) != entry.Checksum {
		return nil, false, fmt.Errorf("%w: %s", ErrChecksumMismatch, key)
	}
	return []byte(entry.Payload), true, nil
}

// Put implements Backend. The value must be a JSON document.
func (f *FileBackend) Put(_ context.Context, key string, value []byte) error {
	var compact bytes.Buffer
	if err := json.Compact(&compact, value); err != nil {
		return fmt.Errorf("value for %s is not JSON: %w", key, err)
	}

	entry := fileEntry{
		Key:      key,
		Payload:  json.RawMessage(compact.Bytes()),
		Checksum: checksum(compact.Bytes()),
		SavedAt:  f.now(),
	}
	var data bytes.Buffer
	enc := json.NewEncoder(&data)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entry); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.baseDir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Delete implements Backend.
func (f *FileBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Close implements Backend.
func (f *FileBackend) Close() error {
	return nil
}
