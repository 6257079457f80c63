// Package archive appends confirmed orders to an append-only JSON log.
//
// FileWriter rewrites the whole JSON array on every append. Appends are
// serialized within one process only; two processes writing the same file
// need external coordination.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"order-bot/internal/domain"
)

// FileWriter stores archive entries as a single JSON array.
type FileWriter struct {
	path  string
	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

func NewFileWriter(path string) (*FileWriter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("archive: path must not be empty")
	}
	return &FileWriter{
		path:  filepath.Clean(path),
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

// Append stamps the order and adds it to the end of the archive.
func (w *FileWriter) Append(ctx context.Context, order domain.Order) (domain.ArchiveEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.ArchiveEntry{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, err := w.load()
	if err != nil {
		return domain.ArchiveEntry{}, err
	}
	entry := domain.NewArchiveEntry(w.newID(), order, w.now())
	entries = append(entries, entry)

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return domain.ArchiveEntry{}, fmt.Errorf("archive: encode: %w", err)
	}
	if err := replaceFile(w.path, raw); err != nil {
		return domain.ArchiveEntry{}, err
	}
	return entry, nil
}

// Load returns every archived entry, oldest first. A missing file is empty.
func (w *FileWriter) Load() ([]domain.ArchiveEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load()
}

func (w *FileWriter) load() ([]domain.ArchiveEntry, error) {
	raw, err := os.ReadFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", w.path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var entries []domain.ArchiveEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", w.path, err)
	}
	return entries, nil
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("archive: create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("archive: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("archive: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("archive: replace %s: %w", path, err)
	}
	return nil
}
