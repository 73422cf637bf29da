package models

import (
	dErrors "accredo/pkg/domain-errors"
	s "accredo/pkg/string"
)

// SubmitStepRequest is the wire form of a step submission. Which payload
// fields are required depends on the declared step.
type SubmitStepRequest struct {
	Step        string `json:"step" validate:"required,oneof=card_image face_capture polling_unit vin_lookup archival_evidence"`
	CardImage   string `json:"card_image,omitempty"`
	FaceImage   string `json:"face_image,omitempty"`
	VIN         string `json:"vin,omitempty"`
	PollingUnit string `json:"polling_unit,omitempty"`
}

// Sanitize trims whitespace on all string fields.
func (r *SubmitStepRequest) Sanitize() {
	s.TrimStrings(&r.Step, &r.CardImage, &r.FaceImage, &r.VIN, &r.PollingUnit)
}

// ToEvent converts the request into a typed step event, checking the
// per-step payload requirements.
func (r *SubmitStepRequest) ToEvent() (StepEvent, error) {
	switch StepName(r.Step) {
	case StepCardImage:
		if r.CardImage == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "card_image is required")
		}
		return CardImageEvent{ImageRef: r.CardImage}, nil
	case StepFaceCapture:
		if r.FaceImage == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "face_image is required")
		}
		return FaceCaptureEvent{ImageRef: r.FaceImage}, nil
	case StepPollingUnit:
		if r.PollingUnit == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "polling_unit is required")
		}
		return PollingUnitEvent{PollingUnit: r.PollingUnit}, nil
	case StepVINLookup:
		if r.VIN == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "vin is required")
		}
		if r.PollingUnit == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "polling_unit is required")
		}
		return VINLookupEvent{VIN: r.VIN, PollingUnit: r.PollingUnit}, nil
	case StepArchivalEvidence:
		if r.CardImage == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "card_image is required")
		}
		if r.FaceImage == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "face_image is required")
		}
		return ArchivalEvidenceEvent{CardImageRef: r.CardImage, FaceImageRef: r.FaceImage}, nil
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unknown step")
	}
}

// ListFilter narrows session listings for dashboards. Nil fields match all.
type ListFilter struct {
	Status      *Status
	Path        *Path
	PollingUnit *string
}

// Matches reports whether a session passes the filter.
func (f *ListFilter) Matches(session *Session) bool {
	if f == nil {
		return true
	}
	if f.Status != nil && session.Status != *f.Status {
		return false
	}
	if f.Path != nil && session.Path != *f.Path {
		return false
	}
	if f.PollingUnit != nil && session.PollingUnit() != *f.PollingUnit {
		return false
	}
	return true
}
