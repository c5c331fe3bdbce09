package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested path does not exist in storage.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPath is returned when a path escapes the storage root.
	ErrInvalidPath = errors.New("invalid path")
)

// Storage provides an abstraction over key-value style file storage.
// Paths are slash separated and relative to the storage root.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
