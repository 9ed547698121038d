package storage

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// FileStore is a Store backed by a single JSON file. It loads the file once
// at construction and writes through on every mutation, so tokens survive
// process restarts. Intended for single-process use; there is no file
// locking across processes.
type FileStore struct {
	path   string
	mu     sync.RWMutex
	values map[string]string
}

// NewFileStore opens (or creates on first write) the store at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "FileStore read")
	}

	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, errors.Wrapf(err, "FileStore parse %s", path)
	}
	return s, nil
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	return value, ok, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.persist()
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return s.persist()
}

// persist writes the current map to disk. Caller must hold the write lock.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "FileStore marshal")
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, "FileStore write")
	}
	return nil
}
