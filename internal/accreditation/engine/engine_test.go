package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"accredo/internal/accreditation/models"
	"accredo/internal/accreditation/store"
	"accredo/internal/extraction"
	"accredo/internal/facematch"
	"accredo/internal/voterindex"
	id "accredo/pkg/domain"
	dErrors "accredo/pkg/domain-errors"
	"accredo/pkg/platform/sentinel"
)

type stubExtractor struct {
	fields extraction.CardFields
	err    error
	calls  int
}

func (s *stubExtractor) Extract(_ context.Context, _ string) (extraction.CardFields, error) {
	s.calls++
	if s.err != nil {
		return extraction.CardFields{}, s.err
	}
	return s.fields, nil
}

type stubVerifier struct {
	result facematch.Result
	err    error
}

func (s *stubVerifier) Verify(_ context.Context, _, _ string) (facematch.Result, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}

// conflictStore wraps a real store and fails the first n CAS attempts with a
// version conflict, simulating a concurrent writer.
type conflictStore struct {
	store.Store
	conflicts int
}

func (s *conflictStore) CompareAndSwap(ctx context.Context, sessionID id.AccreditationID, expectedVersion int64, session *models.Session) error {
	if s.conflicts > 0 {
		s.conflicts--
		return sentinel.ErrVersionConflict
	}
	return s.Store.CompareAndSwap(ctx, sessionID, expectedVersion, session)
}

func testRegistry() *voterindex.Index {
	return voterindex.New([]voterindex.VoterRecord{
		{VIN: "AB1234567", FullName: "Amina Yusuf", DateOfBirth: "1990-04-12", PollingUnit: "UNIT_1", Ward: "Jos North Central", LGA: "Jos North"},
		{VIN: "CD7654321", FullName: "Bala Danladi", DateOfBirth: "1985-11-30", PollingUnit: "UNIT_2", Ward: "Pankshin East", LGA: "Pankshin"},
	})
}

func newTestEngine(t *testing.T, ext *stubExtractor, ver *stubVerifier) (*Engine, store.Store) {
	t.Helper()
	if ext == nil {
		ext = &stubExtractor{fields: extraction.CardFields{VIN: "AB1234567", FullName: "Amina Yusuf", DateOfBirth: "1990-04-12"}}
	}
	if ver == nil {
		ver = &stubVerifier{result: facematch.ResultMatch}
	}
	st := store.NewMemory()
	return New(st, ext, ver, testRegistry()), st
}

func TestAutoPathCompletes(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)
	require.Equal(t, models.PathUnset, session.Path)
	require.Equal(t, 1, session.Step)
	require.Equal(t, models.StatusInProgress, session.Status)

	session, err = eng.Apply(ctx, session.ID, models.CardImageEvent{ImageRef: "img-card-1"})
	require.NoError(t, err)
	require.Equal(t, models.PathAuto, session.Path)
	require.Equal(t, 2, session.Step)
	require.Equal(t, "img-card-1", session.Evidence[models.StepCardImage])
	require.NotNil(t, session.Extraction)
	require.Nil(t, session.VoterDetails)

	session, err = eng.Apply(ctx, session.ID, models.FaceCaptureEvent{ImageRef: "img-face-1"})
	require.NoError(t, err)
	require.Equal(t, 3, session.Step)
	require.Equal(t, "img-face-1", session.Evidence[models.StepFaceCapture])

	session, err = eng.Apply(ctx, session.ID, models.PollingUnitEvent{PollingUnit: "UNIT_1"})
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, session.Status)
	require.NotNil(t, session.CompletedAt)
	require.NotNil(t, session.VoterDetails)
	require.Equal(t, "AB1234567", session.VoterDetails.VIN)
	require.Equal(t, "UNIT_1", session.VoterDetails.PollingUnit)
	// The register record enriches the extracted fields.
	require.Equal(t, "Jos North", session.VoterDetails.LGA)

	// Re-reading gives the committed state.
	loaded, err := eng.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, loaded.Status)
}

func TestManualPathCompletes(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)

	session, err = eng.Apply(ctx, session.ID, models.VINLookupEvent{VIN: "CD7654321", PollingUnit: "UNIT_2"})
	require.NoError(t, err)
	require.Equal(t, models.PathManual, session.Path)
	require.Equal(t, 2, session.Step)
	require.NotNil(t, session.VoterDetails)
	require.Equal(t, "Bala Danladi", session.VoterDetails.FullName)

	session, err = eng.Apply(ctx, session.ID, models.ArchivalEvidenceEvent{CardImageRef: "img-card-2", FaceImageRef: "img-face-2"})
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, session.Status)
	require.NotNil(t, session.CompletedAt)
	require.Contains(t, session.Evidence[models.StepArchivalEvidence], "img-card-2")
}

func TestStepOrderingEnforced(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)

	// A fresh session expects the first step of whichever path the event
	// belongs to.
	_, err = eng.Apply(ctx, session.ID, models.FaceCaptureEvent{ImageRef: "img-face"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	// Skipping straight to the finalizer is rejected too.
	_, err = eng.Apply(ctx, session.ID, models.PollingUnitEvent{PollingUnit: "UNIT_1"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	// The rejected events changed nothing.
	loaded, err := eng.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Step)
	require.Equal(t, models.PathUnset, loaded.Path)
}

func TestPathsAreExclusive(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)

	_, err = eng.Apply(ctx, session.ID, models.CardImageEvent{ImageRef: "img-card"})
	require.NoError(t, err)

	_, err = eng.Apply(ctx, session.ID, models.VINLookupEvent{VIN: "AB1234567", PollingUnit: "UNIT_1"})
	require.True(t, dErrors.HasCode(err, dErrors.CodePathMismatch))

	loaded, err := eng.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.PathAuto, loaded.Path)
	require.Equal(t, 2, loaded.Step)
}

func TestTerminalSessionRejectsSteps(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)
	_, err = eng.Apply(ctx, session.ID, models.VINLookupEvent{VIN: "AB1234567", PollingUnit: "UNIT_1"})
	require.NoError(t, err)
	session, err = eng.Apply(ctx, session.ID, models.ArchivalEvidenceEvent{CardImageRef: "c", FaceImageRef: "f"})
	require.NoError(t, err)
	require.True(t, session.Terminal())

	_, err = eng.Apply(ctx, session.ID, models.ArchivalEvidenceEvent{CardImageRef: "c2", FaceImageRef: "f2"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))
}

func TestNoCardDetectedFailsSession(t *testing.T) {
	ext := &stubExtractor{err: extraction.NewProviderError(extraction.KindNoCard, "test", "no voter card detected", nil)}
	eng, _ := newTestEngine(t, ext, nil)
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)

	session, err = eng.Apply(ctx, session.ID, models.CardImageEvent{ImageRef: "img-blurry"})
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, session.Status)
	require.Equal(t, FailureNoCardDetected, session.FailureReason)
	require.Empty(t, session.Evidence)

	// Terminal: no second chance on this session.
	_, err = eng.Apply(ctx, session.ID, models.CardImageEvent{ImageRef: "img-sharp"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))
}

func TestExtractionOutageIsRetriable(t *testing.T) {
	ext := &stubExtractor{err: extraction.NewProviderError(extraction.KindTimeout, "test", "request timeout", nil)}
	eng, _ := newTestEngine(t, ext, nil)
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)

	_, err = eng.Apply(ctx, session.ID, models.CardImageEvent{ImageRef: "img-card"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))

	// Nothing was committed: no evidence, path still open.
	loaded, err := eng.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, loaded.Status)
	require.Equal(t, models.PathUnset, loaded.Path)
	require.Empty(t, loaded.Evidence)

	// Provider recovers; the same event now applies.
	ext.err = nil
	ext.fields = extraction.CardFields{VIN: "AB1234567", FullName: "Amina Yusuf"}
	session, err = eng.Apply(ctx, session.ID, models.CardImageEvent{ImageRef: "img-card"})
	require.NoError(t, err)
	require.Equal(t, 2, session.Step)
}

func TestFaceMismatchFailsSession(t *testing.T) {
	eng, _ := newTestEngine(t, nil, &stubVerifier{result: facematch.ResultNoMatch})
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)
	_, err = eng.Apply(ctx, session.ID, models.CardImageEvent{ImageRef: "img-card"})
	require.NoError(t, err)

	session, err = eng.Apply(ctx, session.ID, models.FaceCaptureEvent{ImageRef: "img-face"})
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, session.Status)
	require.Equal(t, FailureFaceMismatch, session.FailureReason)
	// Card evidence from step 1 is retained; the failed capture is not.
	require.Contains(t, session.Evidence, models.StepCardImage)
	require.NotContains(t, session.Evidence, models.StepFaceCapture)
}

func TestFaceInconclusiveIsRetriable(t *testing.T) {
	ver := &stubVerifier{result: facematch.ResultInconclusive}
	eng, _ := newTestEngine(t, nil, ver)
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)
	_, err = eng.Apply(ctx, session.ID, models.CardImageEvent{ImageRef: "img-card"})
	require.NoError(t, err)

	_, err = eng.Apply(ctx, session.ID, models.FaceCaptureEvent{ImageRef: "img-face"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))

	loaded, err := eng.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, loaded.Status)
	require.Equal(t, 2, loaded.Step)

	ver.result = facematch.ResultMatch
	session, err = eng.Apply(ctx, session.ID, models.FaceCaptureEvent{ImageRef: "img-face"})
	require.NoError(t, err)
	require.Equal(t, 3, session.Step)
}

func TestManualLookupMissIsRetriable(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)

	_, err = eng.Apply(ctx, session.ID, models.VINLookupEvent{VIN: "ZZ0000000", PollingUnit: "UNIT_1"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	// Denied lookup changes nothing, not even the path.
	loaded, err := eng.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Step)
	require.Equal(t, models.PathUnset, loaded.Path)
	require.Nil(t, loaded.VoterDetails)

	session, err = eng.Apply(ctx, session.ID, models.VINLookupEvent{VIN: "AB1234567", PollingUnit: "UNIT_1"})
	require.NoError(t, err)
	require.Equal(t, 2, session.Step)
}

func TestCASConflictRetriesThenSucceeds(t *testing.T) {
	ext := &stubExtractor{fields: extraction.CardFields{VIN: "AB1234567", FullName: "Amina Yusuf"}}
	base := store.NewMemory()
	st := &conflictStore{Store: base, conflicts: 1}
	eng := New(st, ext, &stubVerifier{result: facematch.ResultMatch}, testRegistry())
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)

	session, err = eng.Apply(ctx, session.ID, models.CardImageEvent{ImageRef: "img-card"})
	require.NoError(t, err)
	require.Equal(t, 2, session.Step)
	require.Equal(t, 2, ext.calls, "event is recomputed on each attempt")
}

func TestCASConflictExhaustionReturnsConflict(t *testing.T) {
	base := store.NewMemory()
	st := &conflictStore{Store: base, conflicts: maxCASAttempts}
	eng := New(st, &stubExtractor{fields: extraction.CardFields{VIN: "AB1234567", FullName: "Amina Yusuf"}},
		&stubVerifier{result: facematch.ResultMatch}, testRegistry())
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)

	_, err = eng.Apply(ctx, session.ID, models.CardImageEvent{ImageRef: "img-card"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestConcurrentStepApplications(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	session, err := eng.Begin(ctx)
	require.NoError(t, err)
	_, err = eng.Apply(ctx, session.ID, models.VINLookupEvent{VIN: "AB1234567", PollingUnit: "UNIT_1"})
	require.NoError(t, err)

	// Two clerks race to finalize. Exactly one archival event may win; the
	// loser is rejected because the fresh read shows a terminal session.
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := eng.Apply(ctx, session.ID, models.ArchivalEvidenceEvent{
				CardImageRef: "c", FaceImageRef: "f",
			})
			results <- err
		}()
	}
	var failures int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			require.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition) ||
				dErrors.HasCode(err, dErrors.CodeConflict))
			failures++
		}
	}
	require.Equal(t, 1, failures)

	loaded, err := eng.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, loaded.Status)
}

func TestUnknownSessionNotFound(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	_, err := eng.Get(ctx, id.NewAccreditationID())
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = eng.Apply(ctx, id.NewAccreditationID(), models.CardImageEvent{ImageRef: "img"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestListFiltersByStatusAndPath(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	first, err := eng.Begin(ctx)
	require.NoError(t, err)
	_, err = eng.Apply(ctx, first.ID, models.VINLookupEvent{VIN: "AB1234567", PollingUnit: "UNIT_1"})
	require.NoError(t, err)
	_, err = eng.Apply(ctx, first.ID, models.ArchivalEvidenceEvent{CardImageRef: "c", FaceImageRef: "f"})
	require.NoError(t, err)

	second, err := eng.Begin(ctx)
	require.NoError(t, err)
	_, err = eng.Apply(ctx, second.ID, models.CardImageEvent{ImageRef: "img-card"})
	require.NoError(t, err)

	completed := models.StatusCompleted
	sessions, err := eng.List(ctx, &models.ListFilter{Status: &completed})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, first.ID, sessions[0].ID)

	auto := models.PathAuto
	sessions, err = eng.List(ctx, &models.ListFilter{Path: &auto})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, second.ID, sessions[0].ID)

	sessions, err = eng.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}
