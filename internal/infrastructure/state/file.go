package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"ArxivIntel/internal/ports"
)

// FileStore keeps the monitor bookmark in a small JSON file.
type FileStore struct {
	path string
}

var _ ports.StateStore = (*FileStore)(nil)

// NewFileStore targets the given path; parent directories are created on save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// LoadState returns the zero state when the file does not exist yet.
func (f *FileStore) LoadState(_ context.Context) (ports.MonitorState, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ports.MonitorState{}, nil
	}
	if err != nil {
		return ports.MonitorState{}, fmt.Errorf("read monitor state: %w", err)
	}

	var st ports.MonitorState
	if err := json.Unmarshal(raw, &st); err != nil {
		return ports.MonitorState{}, fmt.Errorf("decode monitor state %s: %w", f.path, err)
	}
	return st, nil
}

// SaveState overwrites the bookmark file.
func (f *FileStore) SaveState(_ context.Context, st ports.MonitorState) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode monitor state: %w", err)
	}
	if err := os.WriteFile(f.path, raw, 0o644); err != nil {
		return fmt.Errorf("write monitor state: %w", err)
	}
	return nil
}
