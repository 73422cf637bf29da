package sentinel

import "errors"

// Sentinel dependency errors. Stores and collaborators return these (optionally
// wrapped) so the engine can translate them into domain errors exactly once.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidInput    = errors.New("invalid input")
	ErrVersionConflict = errors.New("version conflict")
	ErrUnavailable     = errors.New("unavailable")
)
