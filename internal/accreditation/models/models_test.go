package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	id "accredo/pkg/domain"
	dErrors "accredo/pkg/domain-errors"
)

func validSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(id.NewAccreditationID(), time.Now().UTC())
	require.NoError(t, err)
	return s
}

func TestNewSessionDefaults(t *testing.T) {
	s := validSession(t)
	require.Equal(t, PathUnset, s.Path)
	require.Equal(t, 1, s.Step)
	require.Equal(t, StatusInProgress, s.Status)
	require.Equal(t, int64(1), s.Version)
	require.False(t, s.Terminal())
	require.NoError(t, s.Validate())

	_, err := NewSession(id.AccreditationID{}, time.Now())
	require.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	_, err = NewSession(id.NewAccreditationID(), time.Time{})
	require.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestStepSequences(t *testing.T) {
	require.Equal(t, []StepName{StepCardImage, StepFaceCapture, StepPollingUnit}, StepsFor(PathAuto))
	require.Equal(t, []StepName{StepVINLookup, StepArchivalEvidence}, StepsFor(PathManual))
	require.Nil(t, StepsFor(PathUnset))

	require.Equal(t, 2, StepNumber(PathAuto, StepFaceCapture))
	require.Equal(t, 0, StepNumber(PathManual, StepFaceCapture))
}

func TestValidateStepMatchesEvidence(t *testing.T) {
	s := validSession(t)
	s.Path = PathAuto
	s.Evidence[StepCardImage] = "img"
	s.Extraction = &CardExtraction{VIN: "AB1234567", FullName: "Amina Yusuf"}
	s.Step = 2
	require.NoError(t, s.Validate())

	// Skipped a step.
	s.Step = 3
	require.Error(t, s.Validate())

	// Evidence from the other path.
	s.Step = 2
	s.Evidence[StepVINLookup] = "vin"
	require.Error(t, s.Validate())
}

func TestValidateExtractionPairing(t *testing.T) {
	s := validSession(t)
	s.Path = PathAuto
	s.Evidence[StepCardImage] = "img"
	s.Step = 2
	// Card evidence without its extraction.
	require.Error(t, s.Validate())

	s.Extraction = &CardExtraction{VIN: "AB1234567"}
	require.NoError(t, s.Validate())

	// Manual sessions never carry an extraction.
	m := validSession(t)
	m.Path = PathManual
	m.Extraction = &CardExtraction{VIN: "AB1234567"}
	m.Evidence[StepVINLookup] = "AB1234567"
	m.Step = 2
	require.Error(t, m.Validate())
}

func TestValidateTerminalStates(t *testing.T) {
	s := validSession(t)
	s.Path = PathManual
	s.Status = StatusCompleted
	s.Evidence[StepVINLookup] = "AB1234567"
	// Missing archival evidence, details, and completion time.
	require.Error(t, s.Validate())

	s.Evidence[StepArchivalEvidence] = "refs"
	s.VoterDetails = &VoterDetails{VIN: "AB1234567", FullName: "Amina Yusuf", PollingUnit: "UNIT_1"}
	now := time.Now().UTC()
	s.CompletedAt = &now
	s.Step = 2
	require.NoError(t, s.Validate())

	f := validSession(t)
	f.Path = PathAuto
	f.Status = StatusFailed
	require.Error(t, f.Validate(), "failed session needs a reason")
	f.FailureReason = "no_card_detected"
	require.NoError(t, f.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	s := validSession(t)
	s.Path = PathAuto
	s.Evidence[StepCardImage] = "img"
	s.Extraction = &CardExtraction{VIN: "AB1234567"}
	s.VoterDetails = &VoterDetails{VIN: "AB1234567"}
	now := time.Now().UTC()
	s.CompletedAt = &now

	cp := s.Clone()
	cp.Evidence[StepCardImage] = "other"
	cp.Extraction.VIN = "changed"
	cp.VoterDetails.VIN = "changed"
	*cp.CompletedAt = now.Add(time.Hour)

	require.Equal(t, "img", s.Evidence[StepCardImage])
	require.Equal(t, "AB1234567", s.Extraction.VIN)
	require.Equal(t, "AB1234567", s.VoterDetails.VIN)
	require.True(t, s.CompletedAt.Equal(now))
}

func TestSubmitStepRequestToEvent(t *testing.T) {
	cases := []struct {
		name    string
		req     SubmitStepRequest
		want    StepName
		wantErr bool
	}{
		{name: "card image", req: SubmitStepRequest{Step: "card_image", CardImage: "img"}, want: StepCardImage},
		{name: "card image missing payload", req: SubmitStepRequest{Step: "card_image"}, wantErr: true},
		{name: "face capture", req: SubmitStepRequest{Step: "face_capture", FaceImage: "img"}, want: StepFaceCapture},
		{name: "polling unit", req: SubmitStepRequest{Step: "polling_unit", PollingUnit: "UNIT_1"}, want: StepPollingUnit},
		{name: "vin lookup", req: SubmitStepRequest{Step: "vin_lookup", VIN: "AB1234567", PollingUnit: "UNIT_1"}, want: StepVINLookup},
		{name: "vin lookup without unit", req: SubmitStepRequest{Step: "vin_lookup", VIN: "AB1234567"}, wantErr: true},
		{name: "archival evidence", req: SubmitStepRequest{Step: "archival_evidence", CardImage: "c", FaceImage: "f"}, want: StepArchivalEvidence},
		{name: "unknown step", req: SubmitStepRequest{Step: "teleport"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := tc.req.ToEvent()
			if tc.wantErr {
				require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, event.Step())
		})
	}
}

func TestArchivalEvidenceRef(t *testing.T) {
	ev := ArchivalEvidenceEvent{CardImageRef: "img-card", FaceImageRef: "img-face"}
	ref := ev.Ref()
	require.Contains(t, ref, "img-card")
	require.Contains(t, ref, "img-face")
}

func TestListFilterMatches(t *testing.T) {
	s := validSession(t)
	s.Path = PathManual
	s.Status = StatusCompleted
	s.VoterDetails = &VoterDetails{PollingUnit: "UNIT_1"}

	var nilFilter *ListFilter
	require.True(t, nilFilter.Matches(s))
	require.True(t, (&ListFilter{}).Matches(s))

	completed := StatusCompleted
	failed := StatusFailed
	require.True(t, (&ListFilter{Status: &completed}).Matches(s))
	require.False(t, (&ListFilter{Status: &failed}).Matches(s))

	unit := "UNIT_1"
	other := "UNIT_2"
	require.True(t, (&ListFilter{PollingUnit: &unit}).Matches(s))
	require.False(t, (&ListFilter{PollingUnit: &other}).Matches(s))
}
