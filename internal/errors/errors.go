// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrOutOfMemory  = errors.New("device memory exhausted")
	ErrStreamClosed = errors.New("device stream is closed")
	ErrFleetBroken  = errors.New("shuffle fleet is broken")
	ErrInvalidBatch = errors.New("invalid edge batch")
	ErrSourceClosed = errors.New("edge source is closed")
	ErrWriterClosed = errors.New("storage writer is closed")
	ErrRankMismatch = errors.New("rank out of range")
	ErrAlreadyBuilt = errors.New("edge lists already built")
)

// AllocationError represents a failed device memory reservation.
type AllocationError struct {
	Rank      int
	Requested int64
	Used      int64
	Limit     int64
	Err       error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation error: rank=%d requested=%d used=%d limit=%d: %v",
		e.Rank, e.Requested, e.Used, e.Limit, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// ShuffleError represents a failure of the collective shuffle on one device.
type ShuffleError struct {
	Rank  int
	Stage string
	Err   error
}

func (e *ShuffleError) Error() string {
	return fmt.Sprintf("shuffle error: rank=%d stage=%s: %v", e.Rank, e.Stage, e.Err)
}

func (e *ShuffleError) Unwrap() error {
	return e.Err
}

// ValidationError represents an edge batch that violates the append contract.
type ValidationError struct {
	BatchID string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: batch_id=%s field=%s: %s",
		e.BatchID, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidBatch
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err leaves a per-device edge list unusable.
// Allocation and shuffle failures are fatal; there is no partial success.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var allocErr *AllocationError
	if errors.As(err, &allocErr) {
		return true
	}

	var shuffleErr *ShuffleError
	if errors.As(err, &shuffleErr) {
		return true
	}

	return errors.Is(err, ErrOutOfMemory) ||
		errors.Is(err, ErrFleetBroken) ||
		errors.Is(err, ErrStreamClosed)
}
