package cerr

import (
	"errors"
	"fmt"

	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

func WrapStorageReadError(target string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	case errors.Is(err, storage.ErrInvalidPath):
		return NewError(InvalidArgument, fmt.Sprintf("invalid %s id", target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to read %s: %w", target, err))
}

func WrapStorageWriteError(target string, err error) error {
	if errors.Is(err, storage.ErrInvalidPath) {
		return NewError(InvalidArgument, fmt.Sprintf("invalid %s id", target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to write %s: %w", target, err))
}

func WrapStorageDeleteError(target string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	case errors.Is(err, storage.ErrInvalidPath):
		return NewError(InvalidArgument, fmt.Sprintf("invalid %s id", target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to delete %s: %w", target, err))
}

// NewConflictError reports a lost optimistic-concurrency race on target.
// Callers that own the read-modify-write cycle retry on it.
func NewConflictError(target string, expected, actual int64) error {
	return NewError(Aborted, fmt.Sprintf("%s was modified concurrently", target),
		fmt.Errorf("version mismatch: expected %d, stored %d", expected, actual))
}
