// Package store persists accreditation sessions with per-key optimistic
// concurrency. Two concurrent writers on one session serialize through
// CompareAndSwap: the loser observes ErrVersionConflict, re-reads, and
// recomputes. No lost updates, no cross-process locks.
package store

import (
	"context"

	"accredo/internal/accreditation/models"
	id "accredo/pkg/domain"
)

// Error Contract:
// - Get returns sentinel.ErrNotFound when the session does not exist.
// - Create returns sentinel.ErrAlreadyExists on a duplicate ID.
// - CompareAndSwap returns sentinel.ErrNotFound for an unknown ID and
//   sentinel.ErrVersionConflict when expectedVersion is stale.
// - Infrastructure failures are returned wrapped with context.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, sessionID id.AccreditationID) (*models.Session, error)
	// CompareAndSwap commits session only if the stored version still equals
	// expectedVersion; the committed copy carries expectedVersion+1.
	CompareAndSwap(ctx context.Context, sessionID id.AccreditationID, expectedVersion int64, session *models.Session) error
	List(ctx context.Context, filter *models.ListFilter) ([]*models.Session, error)
}
