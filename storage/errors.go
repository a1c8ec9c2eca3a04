package storage

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every error raised before any storage mutation.
var ErrValidation = errors.New("validation failed")

var (
	ErrTooLarge        = fmt.Errorf("%w: file too large", ErrValidation)
	ErrUnsupportedType = fmt.Errorf("%w: file type not allowed", ErrValidation)
	ErrEmptyFile       = fmt.Errorf("%w: no file provided", ErrValidation)
	ErrInvalidDeadline = fmt.Errorf("%w: deletion deadline must be in the future", ErrValidation)
)

var (
	// ErrNotFound covers both unknown ids and ids whose file has vanished.
	ErrNotFound      = errors.New("image not found")
	ErrInvalidImage  = errors.New("invalid image")
	ErrStorageWrite  = errors.New("failed to save file")
	ErrMetadataWrite = errors.New("failed to save image metadata")
	ErrDuplicateID   = errors.New("image id already exists")
	ErrInternal      = errors.New("internal storage error")
)
