package models

import (
	"time"

	id "accredo/pkg/domain"
	dErrors "accredo/pkg/domain-errors"
)

// Path is the verification track a session follows. It is fixed by the first
// step event and never changes afterwards.
type Path string

const (
	PathUnset  Path = ""
	PathAuto   Path = "auto"
	PathManual Path = "manual"
)

// IsValid reports whether p names a known path.
func (p Path) IsValid() bool {
	return p == PathAuto || p == PathManual
}

// Status is the session lifecycle state.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// StepName identifies one evidence-gathering step.
type StepName string

const (
	// AUTO path: card scan, then live face capture, then polling-unit claim.
	StepCardImage   StepName = "card_image"
	StepFaceCapture StepName = "face_capture"
	StepPollingUnit StepName = "polling_unit"

	// MANUAL path: VIN lookup, then archival evidence capture.
	StepVINLookup        StepName = "vin_lookup"
	StepArchivalEvidence StepName = "archival_evidence"
)

var (
	autoSteps   = []StepName{StepCardImage, StepFaceCapture, StepPollingUnit}
	manualSteps = []StepName{StepVINLookup, StepArchivalEvidence}
)

// StepsFor returns the ordered step sequence for a path.
func StepsFor(path Path) []StepName {
	switch path {
	case PathAuto:
		return autoSteps
	case PathManual:
		return manualSteps
	default:
		return nil
	}
}

// StepNumber returns the 1-based position of a step within its path, or 0 if
// the step does not belong to the path.
func StepNumber(path Path, step StepName) int {
	for i, s := range StepsFor(path) {
		if s == step {
			return i + 1
		}
	}
	return 0
}

// VoterDetails is the resolved identity record. Set exactly once, when the
// session heads toward completion, and immutable afterwards.
type VoterDetails struct {
	VIN         string
	FullName    string
	DateOfBirth string
	PollingUnit string
	Ward        string
	LGA         string
}

// CardExtraction holds the identity fields read off the scanned card on the
// auto path. Captured at the card step and carried until completion turns it
// into VoterDetails.
type CardExtraction struct {
	VIN         string
	FullName    string
	DateOfBirth string
}

// Session tracks one voter through the accreditation protocol. Mutated only by
// the engine in response to validated step events; retained forever for audit.
type Session struct {
	ID            id.AccreditationID
	Path          Path
	Step          int
	Status        Status
	Evidence      map[StepName]string
	Extraction    *CardExtraction
	VoterDetails  *VoterDetails
	FailureReason string
	Version       int64
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// NewSession creates a fresh session at step 1 with the path not yet chosen.
func NewSession(sessionID id.AccreditationID, now time.Time) (*Session, error) {
	if sessionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session ID required")
	}
	if now.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "creation time required")
	}
	return &Session{
		ID:        sessionID,
		Path:      PathUnset,
		Step:      1,
		Status:    StatusInProgress,
		Evidence:  make(map[StepName]string),
		Version:   1,
		CreatedAt: now,
	}, nil
}

// Terminal reports whether the session can accept no further step events.
func (s *Session) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// PollingUnit returns the polling unit associated with the session, from the
// resolved voter details or the step evidence, or "" if not yet known.
func (s *Session) PollingUnit() string {
	if s.VoterDetails != nil && s.VoterDetails.PollingUnit != "" {
		return s.VoterDetails.PollingUnit
	}
	return s.Evidence[StepPollingUnit]
}

// Clone returns a deep copy so stored state cannot be mutated through shared
// references.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Evidence = make(map[StepName]string, len(s.Evidence))
	for k, v := range s.Evidence {
		cp.Evidence[k] = v
	}
	if s.Extraction != nil {
		extraction := *s.Extraction
		cp.Extraction = &extraction
	}
	if s.VoterDetails != nil {
		details := *s.VoterDetails
		cp.VoterDetails = &details
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Validate enforces the structural invariants of a session.
func (s *Session) Validate() error {
	if s.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "session ID required")
	}
	if s.Version < 1 {
		return dErrors.New(dErrors.CodeInvariantViolation, "version must be positive")
	}
	if s.Path == PathUnset {
		if len(s.Evidence) != 0 || s.Step != 1 {
			return dErrors.New(dErrors.CodeInvariantViolation, "session without a path must be at step 1 with no evidence")
		}
		return nil
	}
	if !s.Path.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown path")
	}

	steps := StepsFor(s.Path)
	applied := 0
	for _, step := range steps {
		if _, ok := s.Evidence[step]; ok {
			applied++
		}
	}
	if applied != len(s.Evidence) {
		return dErrors.New(dErrors.CodeInvariantViolation, "evidence contains steps from the other path")
	}
	if s.Path == PathManual && s.Extraction != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "manual sessions carry no card extraction")
	}
	if s.Path == PathAuto && s.Status != StatusFailed {
		_, hasCard := s.Evidence[StepCardImage]
		if hasCard != (s.Extraction != nil) {
			return dErrors.New(dErrors.CodeInvariantViolation, "card extraction must accompany card evidence")
		}
	}

	switch s.Status {
	case StatusInProgress:
		// Step always points one past the applied evidence, never skipping.
		if s.Step != applied+1 || s.Step > len(steps) {
			return dErrors.New(dErrors.CodeInvariantViolation, "step does not match applied evidence count")
		}
		if s.VoterDetails != nil && s.Path == PathAuto {
			return dErrors.New(dErrors.CodeInvariantViolation, "auto-path voter details may be set only on completion")
		}
	case StatusCompleted:
		if applied != len(steps) {
			return dErrors.New(dErrors.CodeInvariantViolation, "completed session must hold evidence for every step")
		}
		if s.VoterDetails == nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "completed session must hold voter details")
		}
		if s.CompletedAt == nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "completed session must carry a completion time")
		}
	case StatusFailed:
		if s.FailureReason == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "failed session must carry a failure reason")
		}
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown status")
	}
	return nil
}
