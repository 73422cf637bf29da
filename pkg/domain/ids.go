// Package domain provides type-safe identifiers so session IDs cannot be
// confused with other strings at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "accredo/pkg/domain-errors"
)

// AccreditationID identifies one voter's accreditation session.
type AccreditationID uuid.UUID

// NewAccreditationID generates a fresh session identifier.
func NewAccreditationID() AccreditationID {
	return AccreditationID(uuid.New())
}

// ParseAccreditationID validates an identifier at a trust boundary (handlers,
// API inputs).
func ParseAccreditationID(s string) (AccreditationID, error) {
	if s == "" {
		return AccreditationID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "session ID cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return AccreditationID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "invalid session ID format")
	}
	return AccreditationID(id), nil
}

func (id AccreditationID) String() string { return uuid.UUID(id).String() }

func (id AccreditationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
