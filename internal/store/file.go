package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ashureev/virtual-companion/internal/domain"
)

// MaxStateSizeBytes bounds the persisted document to keep a corrupt or
// runaway file from exhausting memory at startup.
const MaxStateSizeBytes = 10 * 1024 * 1024

// FileStore keeps the persona as one JSON document on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed repository at path. The parent
// directory is created on first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state path cannot be empty")
	}
	return &FileStore{path: path}, nil
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file. A missing file is not an error.
func (s *FileStore) Load(_ context.Context) (*domain.Persona, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat state file: %w", err)
	}
	if info.Size() > MaxStateSizeBytes {
		return nil, fmt.Errorf("state file size %d bytes exceeds maximum %d bytes", info.Size(), MaxStateSizeBytes)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var p domain.Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}
	return &p, nil
}

// Save writes p to a temp file and renames it over the state file, so a
// reader never sees a partial document.
func (s *FileStore) Save(_ context.Context, p *domain.Persona) error {
	if p == nil {
		return fmt.Errorf("persona cannot be nil")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}
	if len(data) > MaxStateSizeBytes {
		return fmt.Errorf("state size %d bytes exceeds maximum %d bytes", len(data), MaxStateSizeBytes)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("commit state file: %w", err)
	}
	return nil
}

// Ping checks that the state directory exists or can be created.
func (s *FileStore) Ping(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("state directory not writable: %w", err)
	}
	return nil
}

// Close is a no-op; every Save is self-contained.
func (s *FileStore) Close() error {
	return nil
}
