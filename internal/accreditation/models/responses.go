package models

import "time"

// VoterDetailsResponse is the wire form of a resolved identity.
type VoterDetailsResponse struct {
	VIN         string `json:"vin"`
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	PollingUnit string `json:"polling_unit"`
	Ward        string `json:"ward,omitempty"`
	LGA         string `json:"lga,omitempty"`
}

// SessionSnapshot is the read model returned to clients and dashboards.
type SessionSnapshot struct {
	SessionID     string                `json:"session_id"`
	Path          string                `json:"path,omitempty"`
	Step          int                   `json:"step"`
	Status        string                `json:"status"`
	Evidence      map[string]string     `json:"evidence"`
	VoterDetails  *VoterDetailsResponse `json:"voter_details,omitempty"`
	FailureReason string                `json:"failure_reason,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
}

// Snapshot converts a session into its wire form.
func Snapshot(s *Session) SessionSnapshot {
	snap := SessionSnapshot{
		SessionID:     s.ID.String(),
		Path:          string(s.Path),
		Step:          s.Step,
		Status:        string(s.Status),
		Evidence:      make(map[string]string, len(s.Evidence)),
		FailureReason: s.FailureReason,
		CreatedAt:     s.CreatedAt,
		CompletedAt:   s.CompletedAt,
	}
	for step, ref := range s.Evidence {
		snap.Evidence[string(step)] = ref
	}
	if s.VoterDetails != nil {
		snap.VoterDetails = &VoterDetailsResponse{
			VIN:         s.VoterDetails.VIN,
			FullName:    s.VoterDetails.FullName,
			DateOfBirth: s.VoterDetails.DateOfBirth,
			PollingUnit: s.VoterDetails.PollingUnit,
			Ward:        s.VoterDetails.Ward,
			LGA:         s.VoterDetails.LGA,
		}
	}
	return snap
}

// BeginResponse acknowledges a newly started session.
type BeginResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ListResponse wraps a dashboard listing.
type ListResponse struct {
	Sessions []SessionSnapshot `json:"sessions"`
	Count    int               `json:"count"`
}
