package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	tableFileMode   = 0o600
	tableDirMode    = 0o700
	tempFilePattern = ".table-*.json.tmp"
)

// FileTable persists a key→value table as a single JSON object file. Every
// Set reads the whole table and rewrites the whole file; a single mutex
// serializes writers across goroutines.
type FileTable struct {
	path string
	mu   sync.RWMutex
}

var _ Table = (*FileTable)(nil)

// NewFileTable constructs a table backed by the JSON file at path. The file
// does not need to exist yet; a missing file reads as an empty table.
func NewFileTable(path string) (*FileTable, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve table path: %w", err)
	}
	return &FileTable{path: filepath.Clean(abs)}, nil
}

func (t *FileTable) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	entries, err := t.read()
	if err != nil {
		return "", false, err
	}

	value, ok := entries[key]
	return value, ok, nil
}

func (t *FileTable) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := t.read()
	if err != nil {
		return err
	}
	entries[key] = value

	return t.write(entries)
}

func (t *FileTable) read() (map[string]string, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read table file: %w", err)
	}

	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode table file: %w", err)
	}

	return entries, nil
}

func (t *FileTable) write(entries map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(t.path), tableDirMode); err != nil {
		return fmt.Errorf("create table directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode table file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(t.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp table file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp table file: %w", err)
	}

	if err := tempFile.Chmod(tableFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp table file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp table file: %w", err)
	}

	if err := os.Rename(tempName, t.path); err != nil {
		return fmt.Errorf("replace table file: %w", err)
	}
	cleanup = false

	return nil
}
