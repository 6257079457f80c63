package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"order-bot/internal/domain"
)

// FileCheckpoint stores the order mapping as one JSON object keyed by user id.
// The file is read and rewritten in full.
type FileCheckpoint struct {
	path string
	mu   sync.Mutex
}

func NewFileCheckpoint(path string) (*FileCheckpoint, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("orders: checkpoint path must not be empty")
	}
	return &FileCheckpoint{path: filepath.Clean(path)}, nil
}

// Load reads the mapping. A missing file is an empty mapping.
func (f *FileCheckpoint) Load() (map[string]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]domain.Order{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("orders: read %s: %w", f.path, err)
	}
	all := map[string]domain.Order{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("orders: decode %s: %w", f.path, err)
	}
	return all, nil
}

// Save replaces the file contents with the given mapping.
func (f *FileCheckpoint) Save(all map[string]domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if all == nil {
		all = map[string]domain.Order{}
	}
	raw, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("orders: encode: %w", err)
	}
	return writeFileAtomic(f.path, raw)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("orders: create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("orders: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("orders: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("orders: replace %s: %w", path, err)
	}
	return nil
}
