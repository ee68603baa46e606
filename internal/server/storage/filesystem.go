package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store defines the interface for file storage backends.
// Files are grouped per upload request; the file ID is the storage name.
type Store interface {
	Save(uploadRequestID, fileID string, data []byte) error
	Read(uploadRequestID, fileID string) ([]byte, error)
	Exists(uploadRequestID, fileID string) bool
	Delete(uploadRequestID, fileID string) error
	RemoveRequestDir(uploadRequestID string) error
	EnsureDir() error
}

// FileSystemStore stores encrypted file bodies on the local filesystem,
// one directory per upload request.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage root if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Save writes data under the upload request's directory, creating it on
// first use. A partially written file is removed so a failed save leaves
// no artifact behind.
func (fs *FileSystemStore) Save(uploadRequestID, fileID string, data []byte) error {
	dir := fs.requestDir(uploadRequestID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create request directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, fileID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}

// Read returns the stored bytes of one file.
func (fs *FileSystemStore) Read(uploadRequestID, fileID string) ([]byte, error) {
	data, err := os.ReadFile(fs.filePath(uploadRequestID, fileID))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	return data, nil
}

// Exists reports whether the stored bytes of a file are present on disk.
func (fs *FileSystemStore) Exists(uploadRequestID, fileID string) bool {
	_, err := os.Stat(fs.filePath(uploadRequestID, fileID))
	return err == nil
}

// Delete removes the stored bytes of one file. A missing file is not an error.
func (fs *FileSystemStore) Delete(uploadRequestID, fileID string) error {
	path := fs.filePath(uploadRequestID, fileID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}

// RemoveRequestDir removes an upload request's directory. The removal is
// deliberately non-recursive: a directory that still holds files means a
// cascade missed something, and that must fail loudly rather than silently
// discard bytes. A directory that never existed is fine.
func (fs *FileSystemStore) RemoveRequestDir(uploadRequestID string) error {
	dir := fs.requestDir(uploadRequestID)
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove request directory %s: %w", dir, err)
	}
	return nil
}

func (fs *FileSystemStore) requestDir(uploadRequestID string) string {
	return filepath.Join(fs.basePath, uploadRequestID)
}

func (fs *FileSystemStore) filePath(uploadRequestID, fileID string) string {
	return filepath.Join(fs.requestDir(uploadRequestID), fileID)
}
