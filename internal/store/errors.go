package store

import "github.com/sachinecin/AHS-Agentic/internal/domain"

// Sentinels shared with the domain package so callers can check either.
var (
	ErrNotFound          = domain.ErrNotFound
	ErrDimensionMismatch = domain.ErrDimensionMismatch
)
