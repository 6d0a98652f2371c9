package domain

// CreateEncounterRequest is the gateway request to start an encounter.
type CreateEncounterRequest struct {
	ParticipantA string `json:"participant_a"`
	ParticipantB string `json:"participant_b"`
	Realm        string `json:"realm,omitempty"`
}

// SubmitInstructionRequest is the gateway request body for a turn.
type SubmitInstructionRequest struct {
	PlayerID string `json:"player_id"`
	Payload  string `json:"payload"`
}

// ErrorResponse wraps an error record in HTTP responses.
type ErrorResponse struct {
	Error *ErrorBody `json:"error"`
}

// ListRunsResponse is returned by the run history endpoint.
type ListRunsResponse struct {
	Runs []Run `json:"runs"`
}

// ListEventsResponse is returned by the run events endpoint.
type ListEventsResponse struct {
	Events []Event `json:"events"`
}
