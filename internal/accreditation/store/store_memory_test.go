package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"accredo/internal/accreditation/models"
	id "accredo/pkg/domain"
	"accredo/pkg/platform/sentinel"
)

func newSession(t *testing.T) *models.Session {
	t.Helper()
	session, err := models.NewSession(id.NewAccreditationID(), time.Now().UTC())
	require.NoError(t, err)
	return session
}

func TestMemoryCreateAndGet(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	session := newSession(t)

	require.NoError(t, st.Create(ctx, session))
	require.ErrorIs(t, st.Create(ctx, session), sentinel.ErrAlreadyExists)

	loaded, err := st.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, loaded.ID)
	require.Equal(t, int64(1), loaded.Version)

	_, err = st.Get(ctx, id.NewAccreditationID())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryCopyOutSemantics(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	session := newSession(t)
	require.NoError(t, st.Create(ctx, session))

	// Mutating what Get returned must not leak into the store.
	loaded, err := st.Get(ctx, session.ID)
	require.NoError(t, err)
	loaded.Evidence[models.StepCardImage] = "tampered"
	loaded.Status = models.StatusFailed

	fresh, err := st.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Empty(t, fresh.Evidence)
	require.Equal(t, models.StatusInProgress, fresh.Status)
}

func TestMemoryCompareAndSwap(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	session := newSession(t)
	require.NoError(t, st.Create(ctx, session))

	next := session.Clone()
	next.Path = models.PathAuto
	next.Evidence[models.StepCardImage] = "img-card"
	next.Extraction = &models.CardExtraction{VIN: "AB1234567", FullName: "Amina Yusuf"}
	next.Step = 2

	require.NoError(t, st.CompareAndSwap(ctx, session.ID, 1, next))
	require.Equal(t, int64(2), next.Version)

	loaded, err := st.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), loaded.Version)
	require.Equal(t, "img-card", loaded.Evidence[models.StepCardImage])
	require.NotNil(t, loaded.Extraction)

	// A stale writer loses.
	stale := session.Clone()
	stale.Step = 2
	require.ErrorIs(t, st.CompareAndSwap(ctx, session.ID, 1, stale), sentinel.ErrVersionConflict)

	// Unknown session.
	require.ErrorIs(t, st.CompareAndSwap(ctx, id.NewAccreditationID(), 1, next), sentinel.ErrNotFound)
}

func TestMemoryListFilters(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	first := newSession(t)
	first.CreatedAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, st.Create(ctx, first))

	second := newSession(t)
	second.Path = models.PathManual
	second.Step = 2
	second.Evidence = map[models.StepName]string{models.StepVINLookup: "AB1234567"}
	second.VoterDetails = &models.VoterDetails{VIN: "AB1234567", FullName: "Amina Yusuf", PollingUnit: "UNIT_1"}
	require.NoError(t, st.Create(ctx, second))

	all, err := st.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Oldest first.
	require.Equal(t, first.ID, all[0].ID)

	manual := models.PathManual
	filtered, err := st.List(ctx, &models.ListFilter{Path: &manual})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, second.ID, filtered[0].ID)

	unit := "UNIT_1"
	filtered, err = st.List(ctx, &models.ListFilter{PollingUnit: &unit})
	require.NoError(t, err)
	require.Len(t, filtered, 1)

	missing := "UNIT_404"
	filtered, err = st.List(ctx, &models.ListFilter{PollingUnit: &missing})
	require.NoError(t, err)
	require.Empty(t, filtered)
}
