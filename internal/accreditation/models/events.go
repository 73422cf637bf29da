package models

import "encoding/json"

// StepEvent is one validated client submission. The event's step name declares
// which position in the protocol it claims; the engine rejects it unless that
// matches the session's current step.
type StepEvent interface {
	Step() StepName
	EventPath() Path
}

// CardImageEvent submits the scanned voter card (AUTO step 1).
type CardImageEvent struct {
	ImageRef string
}

func (CardImageEvent) Step() StepName  { return StepCardImage }
func (CardImageEvent) EventPath() Path { return PathAuto }

// FaceCaptureEvent submits the live face capture (AUTO step 2).
type FaceCaptureEvent struct {
	ImageRef string
}

func (FaceCaptureEvent) Step() StepName  { return StepFaceCapture }
func (FaceCaptureEvent) EventPath() Path { return PathAuto }

// PollingUnitEvent submits the polling-unit claim that finalizes the AUTO path.
type PollingUnitEvent struct {
	PollingUnit string
}

func (PollingUnitEvent) Step() StepName  { return StepPollingUnit }
func (PollingUnitEvent) EventPath() Path { return PathAuto }

// VINLookupEvent submits a VIN plus claimed polling unit (MANUAL step 1).
type VINLookupEvent struct {
	VIN         string
	PollingUnit string
}

func (VINLookupEvent) Step() StepName  { return StepVINLookup }
func (VINLookupEvent) EventPath() Path { return PathManual }

// ArchivalEvidenceEvent submits card and face images kept for the record
// (MANUAL step 2).
type ArchivalEvidenceEvent struct {
	CardImageRef string
	FaceImageRef string
}

func (ArchivalEvidenceEvent) Step() StepName  { return StepArchivalEvidence }
func (ArchivalEvidenceEvent) EventPath() Path { return PathManual }

// Ref packs both artifact references into the single evidence value kept for
// the archival step.
func (e ArchivalEvidenceEvent) Ref() string {
	ref, _ := json.Marshal(struct {
		CardImage   string `json:"card_image"`
		FaceCapture string `json:"face_capture"`
	}{CardImage: e.CardImageRef, FaceCapture: e.FaceImageRef})
	return string(ref)
}
