package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ArxivIntel/internal/domain"
	"ArxivIntel/internal/ports"
)

// FileStorage persists the queue as an indented JSON document.
type FileStorage struct {
	path string
}

var _ ports.QueueStorage = (*FileStorage)(nil)

// NewFileStorage stores the queue at path, creating parent directories on save.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load reads the queue file. A missing file is not an error.
func (f *FileStorage) Load(_ context.Context) (*domain.QueueSnapshot, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}

	var snapshot domain.QueueSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	return &snapshot, nil
}

// Save writes to a temp file and renames it over the queue file.
func (f *FileStorage) Save(_ context.Context, snapshot domain.QueueSnapshot) error {
	if snapshot.Papers == nil {
		snapshot.Papers = []domain.Paper{}
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write queue file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}
