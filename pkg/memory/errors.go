package memory

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the memory service. Callers match them with
// errors.Is to map failures onto API responses.
var (
	// ErrEmptyContent indicates a memory with no content.
	ErrEmptyContent = errors.New("memory content is required")

	// ErrInvalidType indicates an unknown memory type.
	ErrInvalidType = errors.New("invalid memory type")

	// ErrInvalidImportance indicates an importance outside [1,5].
	ErrInvalidImportance = errors.New("importance must be between 1 and 5")

	// ErrEmptyUpdate indicates an update request with no fields set.
	ErrEmptyUpdate = errors.New("update contains no changes")

	// ErrNotFound indicates the memory does not exist or belongs to another
	// user.
	ErrNotFound = errors.New("memory not found")

	// ErrBatchTooLarge indicates an embedding batch over the size limit.
	ErrBatchTooLarge = fmt.Errorf("at most %d memories per embedding batch", MaxBatchSize)

	// ErrEmptyBatch indicates an embedding batch with no memory ids.
	ErrEmptyBatch = errors.New("memory ids are required")
)
