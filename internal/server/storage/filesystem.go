package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemStore keeps content parts on the local filesystem, one directory
// per file id and one file per part.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// PutPart writes one content part to disk, returning the bytes written.
func (fs *FileSystemStore) PutPart(ctx context.Context, fileID string, index int, data io.Reader) (int64, error) {
	dir := filepath.Join(fs.basePath, fileID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create part directory: %w", err)
	}

	partPath := fs.partPath(fileID, index)
	file, err := os.Create(partPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create part file %s: %w", partPath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, data)
	if err != nil {
		// Clean up partial file on error
		os.Remove(partPath)
		return 0, fmt.Errorf("failed to write part: %w", err)
	}

	return n, nil
}

// GetPart opens one content part for reading.
func (fs *FileSystemStore) GetPart(ctx context.Context, fileID string, index int) (io.ReadCloser, error) {
	file, err := os.Open(fs.partPath(fileID, index))
	if err != nil {
		return nil, fmt.Errorf("failed to open part %d of %s: %w", index, fileID, err)
	}
	return file, nil
}

// DeleteParts removes every stored part of a file.
func (fs *FileSystemStore) DeleteParts(ctx context.Context, fileID string, count int) error {
	dir := filepath.Join(fs.basePath, fileID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete parts of %s: %w", fileID, err)
	}
	return nil
}

// Ping verifies the storage directory is accessible.
func (fs *FileSystemStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(fs.basePath); err != nil {
		return fmt.Errorf("storage directory not accessible: %w", err)
	}
	return nil
}

func (fs *FileSystemStore) partPath(fileID string, index int) string {
	return filepath.Join(fs.basePath, fileID, fmt.Sprintf("%06d.part", index))
}
