// Package cache holds the last-known-good snapshot used when the account
// store cannot be reached. A slot holds exactly one value; the latest Put wins.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// DefaultSlotName names the accounts snapshot slot.
const DefaultSlotName = "shopee_accounts_backup"

// Slot is a single named cache entry holding a JSON document.
type Slot interface {
	Put(ctx context.Context, value any) error
	Get(ctx context.Context, dest any) (bool, error)
	Name() string
}

// FileSlot keeps the slot in a JSON file on local disk.
type FileSlot struct {
	mu   sync.Mutex
	path string
}

// NewFileSlot returns a slot persisted at path. Parent directories are created on first Put.
func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

// Put writes the value through a temporary file and rename.
func (s *FileSlot) Put(_ context.Context, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

// Get reads the slot into dest. A missing file reports false.
func (s *FileSlot) Get(_ context.Context, dest any) (bool, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read cache file: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("json unmarshal %s: %w", s.path, err)
	}
	return true, nil
}

// Name returns the file path.
func (s *FileSlot) Name() string {
	return s.path
}
