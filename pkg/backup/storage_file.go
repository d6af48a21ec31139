package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStorage keeps snapshots as plain files in one directory, the
// default for a single-device deployment.
type FileStorage struct {
	dir string
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

// Save writes a snapshot through a temp file and renames it into
// place, so a crash mid-write never leaves a truncated snapshot.
func (fs *FileStorage) Save(_ context.Context, name string, data io.Reader) error {
	// the temp name must not share the snapshot prefix or List would
	// see half-written files
	tmp, err := os.CreateTemp(fs.dir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(fs.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return nil
}

func (fs *FileStorage) Load(_ context.Context, name string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(fs.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	return file, nil
}

// List returns snapshot names with the given prefix in lexical order,
// which for timestamped names is also chronological order.
func (fs *FileStorage) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (fs *FileStorage) Delete(_ context.Context, name string) error {
	return os.Remove(filepath.Join(fs.dir, name))
}
