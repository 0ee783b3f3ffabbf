package storage

import "errors"

// Error taxonomy surfaced to callers. The store is authoritative for
// state-transition checks: a validation request racing another
// operator loses with ErrInvalidStateTransition, never last-write-wins.
var (
	ErrNotFound               = errors.New("record not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUnavailable            = errors.New("store unavailable")
)
