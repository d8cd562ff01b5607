package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: row, blob or node does not exist
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrAlreadyExists: a content-addressed blob is already stored under the key
//   - ErrLockTimeout: a row lock could not be acquired within the wait bound
//   - ErrInvalidState: entity in wrong state for requested operation
//   - ErrUnavailable: backing store temporarily unavailable
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockTimeout   = errors.New("lock wait timeout")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)
