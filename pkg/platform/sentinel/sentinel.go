package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in the store
//   - ErrConflict: entity already exists with a different body
//   - ErrInvalidState: entity is in the wrong state for the requested operation
//   - ErrUnavailable: backing service temporarily unavailable
//   - ErrClosed: component was shut down and accepts no more work
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrClosed       = errors.New("closed")
)
