package audit

import "time"

// Event is emitted from the accreditation engine to capture every state
// transition for later audit. Keep it transport-agnostic so stores and sinks
// can fan out.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"session_id"`
	Action      string    `json:"action"`
	Path        string    `json:"path,omitempty"`
	Step        int       `json:"step,omitempty"`
	PollingUnit string    `json:"polling_unit,omitempty"`
	Decision    string    `json:"decision,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Actions recorded by the engine.
const (
	ActionSessionStarted   = "session_started"
	ActionStepApplied      = "step_applied"
	ActionStepRejected     = "step_rejected"
	ActionSessionCompleted = "session_completed"
	ActionSessionFailed    = "session_failed"
	ActionVINLookupDenied  = "vin_lookup_denied"
)

// Decisions recorded with events.
const (
	DecisionAdvanced  = "advanced"
	DecisionCompleted = "completed"
	DecisionFailed    = "failed"
	DecisionDenied    = "denied"
)
