package storage

import "errors"

// Sentinel errors shared across the storage, filesystem and boot layers.
// Callers match with errors.Is; wrap sites add context with %w.
var (
	// ErrNotFound means a device, file or directory entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported means the on-disk format is recognized but outside
	// what the built-in readers handle.
	ErrUnsupported = errors.New("unsupported")
	// ErrOutOfResources means a fixed-capacity table is full.
	ErrOutOfResources = errors.New("out of resources")
	// ErrInvalidParameter means the caller passed something unusable.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrVolumeCorrupted means on-disk metadata failed validation.
	ErrVolumeCorrupted = errors.New("volume corrupted")
	// ErrLoadError means a kernel or EFI image could not be staged.
	ErrLoadError = errors.New("load error")
)
