package main

import (
	"errors"
	"os"

	mdpreview "github.com/alnah/go-mdpreview"
	"github.com/alnah/go-mdpreview/internal/assets"
	"github.com/alnah/go-mdpreview/internal/config"
)

// Exit codes for mdpreview CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, 3=io.
const (
	ExitSuccess = 0 // Clean shutdown
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, mdpreview.ErrReadFile) ||
		errors.Is(err, mdpreview.ErrWriteFile) ||
		errors.Is(err, mdpreview.ErrWatch) ||
		errors.Is(err, ErrWriteOutput) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, mdpreview.ErrInvalidTheme) ||
		errors.Is(err, mdpreview.ErrInvalidCapacity) ||
		errors.Is(err, mdpreview.ErrInvalidWorkerCount) ||
		errors.Is(err, mdpreview.ErrInvalidDelayBounds) ||
		errors.Is(err, mdpreview.ErrInvalidThreshold) ||
		errors.Is(err, assets.ErrInvalidBasePath) ||
		errors.Is(err, assets.ErrPathTraversal) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, ErrInvalidExtension) {
		return ExitUsage
	}

	return ExitGeneral
}
