package domain

import (
	"encoding/json"
	"time"
)

// Run records one execution of the instruction workflow.
type Run struct {
	RunID       string          `json:"run_id"`
	EncounterID string          `json:"encounter_id"`
	PlayerID    string          `json:"player_id"`
	Status      RunStatus       `json:"status"`
	State       WorkflowState   `json:"state"`
	ErrorCode   ErrorCode       `json:"error_code,omitempty"`
	Error       json.RawMessage `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
}

// Event is an entry in a run's trace.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RunStartedPayload is the payload of run_started events.
type RunStartedPayload struct {
	EncounterID string `json:"encounter_id"`
	PlayerID    string `json:"player_id"`
	Payload     string `json:"payload"`
}

// StateChangedPayload is the payload of state_changed events.
type StateChangedPayload struct {
	From WorkflowState `json:"from,omitempty"`
	To   WorkflowState `json:"to"`
}

// StepRetryPayload is the payload of step_retry events.
type StepRetryPayload struct {
	Step    StepName `json:"step"`
	Attempt int      `json:"attempt"`
	Error   string   `json:"error"`
	Backoff int64    `json:"backoff_ms"`
}

// RunFailedPayload is the payload of run_failed events.
type RunFailedPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// RunSucceededPayload is the payload of run_succeeded events.
type RunSucceededPayload struct {
	Version           int64  `json:"version"`
	ActiveParticipant string `json:"active_participant"`
	Message           string `json:"message"`
}
