package domain

import "errors"

var (
	// ErrDimensionMismatch indicates a vector whose length differs from the
	// deployment's configured dimension. Caller bug; never retried.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotFound is returned for lookups of unknown fact ids.
	ErrNotFound = errors.New("fact not found")

	// ErrLookupTimeout marks a single speculative lookup that exceeded its
	// per-lookup deadline. It degrades one result entry, never the batch.
	ErrLookupTimeout = errors.New("lookup timed out")

	// ErrTierTransitionConflict indicates a tier transition raced with
	// another writer; the transition is retried under the per-id lock.
	ErrTierTransitionConflict = errors.New("tier transition conflict")

	// ErrConfiguration is fatal at startup.
	ErrConfiguration = errors.New("invalid configuration")
)
