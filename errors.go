package mdpreview

import "errors"

// Sentinel errors for library operations.
var (
	ErrClosed         = errors.New("pipeline is closed")
	ErrNoDocument     = errors.New("no document loaded")
	ErrRenderFailed   = errors.New("block render failed")
	ErrCacheCorrupted = errors.New("cache accounting corrupted")

	// Option validation errors.
	ErrInvalidCapacity    = errors.New("invalid cache capacity")
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrInvalidDelayBounds = errors.New("invalid debounce delay bounds")
	ErrInvalidThreshold   = errors.New("invalid similarity threshold")
	ErrInvalidTheme       = errors.New("theme not found")

	// Gateway errors.
	ErrReadFile  = errors.New("failed to read document")
	ErrWriteFile = errors.New("failed to write document")
	ErrWatch     = errors.New("failed to watch document")
)
