package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
	ErrLockLost = errors.New("lock lost")

	// ErrInvariant marks an event that would break an aggregate invariant.
	// The event is skipped and nothing it touched is written.
	ErrInvariant = errors.New("invariant violation")
	// ErrDecode marks an event whose payload or on-chain metadata cannot be decoded.
	ErrDecode       = errors.New("decode failed")
	ErrUnknownEvent = errors.New("unknown event kind")
	// ErrReverted marks a contract call the chain rejected. Callers fall back
	// to defaults; any other call failure is an infrastructure error.
	ErrReverted = errors.New("call reverted")
)
