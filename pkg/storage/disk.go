// Package storage is where uploaded blobs land.
//
// Two drivers are available:
//   - "local": local filesystem (default)
//   - "s3":    S3-compatible object storage (AWS S3, MinIO, R2, Spaces)
//
// Quick start:
//
//	storage.Connect()
//	disk := storage.Use(config.StorageDefault())
//	err := disk.Put(ctx, "uploads/3f2a/photo.jpg", r, size, "image/jpeg")
//	url := disk.URL("uploads/3f2a/photo.jpg")
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a path does not exist on a disk.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidPath is returned for empty paths or paths escaping the disk root.
var ErrInvalidPath = errors.New("storage: invalid path")

// Disk is the driver interface every storage backend implements.
type Disk interface {
	// Name is the driver name the disk was registered under.
	Name() string

	// Put writes size bytes from r to path. size may be -1 when unknown.
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error

	// Get opens the blob at path. Caller must close it.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists reports whether a blob exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Size returns the byte size of the blob.
	Size(ctx context.Context, path string) (int64, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, path string) error

	// URL returns the public URL for path.
	URL(path string) string
}
