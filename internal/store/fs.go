package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// fileStore is the raw record layer: one JSON file per record, addressed by a
// path slice under the base directory. Writes are atomic (temp file + rename)
// and guarded by per-file locks so concurrent engines sharing a data
// directory cannot corrupt records.
type fileStore struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*fileLock
}

func newFileStore(basePath string) *fileStore {
	return &fileStore{
		basePath: basePath,
		locks:    make(map[string]*fileLock),
	}
}

func (s *fileStore) file(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

func (s *fileStore) dir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

func (s *fileStore) get(ctx context.Context, path []string, v any) error {
	data, err := os.ReadFile(s.file(path))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read record: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

func (s *fileStore) put(ctx context.Context, path []string, v any) error {
	filePath := s.file(path)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := s.lockFor(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

func (s *fileStore) delete(ctx context.Context, path []string) error {
	filePath := s.file(path)

	lock := s.lockFor(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// deleteAll removes every record and subdirectory under a path.
func (s *fileStore) deleteAll(ctx context.Context, path []string) error {
	dirPath := s.dir(path)
	if err := os.RemoveAll(dirPath); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// list returns record keys and subdirectory names at a path, sorted by name.
func (s *fileStore) list(ctx context.Context, path []string) ([]string, error) {
	entries, err := os.ReadDir(s.dir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var items []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			items = append(items, name)
		} else if strings.HasSuffix(name, ".json") {
			items = append(items, strings.TrimSuffix(name, ".json"))
		}
	}
	return items, nil
}

// scan calls fn for every record at a path, in name order.
func (s *fileStore) scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	dirPath := s.dir(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dirPath, name))
		if err != nil {
			continue
		}
		if err := fn(strings.TrimSuffix(name, ".json"), json.RawMessage(data)); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileStore) exists(ctx context.Context, path []string) bool {
	_, err := os.Stat(s.file(path))
	return err == nil
}

func (s *fileStore) lockFor(filePath string) *fileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = newFileLock(filePath)
		s.locks[filePath] = lock
	}
	return lock
}
