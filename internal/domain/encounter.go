// Package domain defines the shared data contracts of the encounter service.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Encounter is a turn-based interaction between exactly two participants.
type Encounter struct {
	EncounterID       string    `json:"id"`
	Participants      [2]string `json:"participants"`
	ActiveParticipant string    `json:"active_participant"`
	MessageLog        []string  `json:"message_log"`
	Realm             string    `json:"realm,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Version           int64     `json:"version"`
}

// NewEncounter builds the initial record for a pair of participants.
// The first participant acts first.
func NewEncounter(id, participantA, participantB, realm string, now time.Time) (*Encounter, error) {
	participantA = strings.TrimSpace(participantA)
	participantB = strings.TrimSpace(participantB)
	if participantA == "" || participantB == "" {
		return nil, NewError(CodeInvalidArgument, "both participants are required")
	}
	if participantA == participantB {
		return nil, NewError(CodeInvalidArgument, "participants must be distinct")
	}
	return &Encounter{
		EncounterID:       id,
		Participants:      [2]string{participantA, participantB},
		ActiveParticipant: participantA,
		MessageLog:        []string{},
		Realm:             strings.TrimSpace(realm),
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}, nil
}

// HasParticipant reports whether playerID takes part in the encounter.
func (e *Encounter) HasParticipant(playerID string) bool {
	return playerID != "" && (e.Participants[0] == playerID || e.Participants[1] == playerID)
}

// OtherParticipant returns the participant that is not playerID.
func (e *Encounter) OtherParticipant(playerID string) string {
	if e.Participants[0] == playerID {
		return e.Participants[1]
	}
	return e.Participants[0]
}

// Clone returns a deep copy so callers cannot alias the message log.
func (e *Encounter) Clone() Encounter {
	c := *e
	c.MessageLog = append([]string(nil), e.MessageLog...)
	if c.MessageLog == nil {
		c.MessageLog = []string{}
	}
	return c
}

// Apply folds a delta and its message into a copy of the encounter.
// The version is left untouched; the store assigns the next one.
func (e *Encounter) Apply(delta *Delta, message string) (Encounter, error) {
	if delta == nil {
		return Encounter{}, fmt.Errorf("apply: nil delta")
	}
	if delta.EncounterID != e.EncounterID {
		return Encounter{}, fmt.Errorf("apply: delta for encounter %s applied to %s", delta.EncounterID, e.EncounterID)
	}
	if !e.HasParticipant(delta.NextActiveParticipant) {
		return Encounter{}, fmt.Errorf("apply: next active participant %q is not in the encounter", delta.NextActiveParticipant)
	}
	if strings.TrimSpace(message) == "" {
		return Encounter{}, fmt.Errorf("apply: empty message")
	}

	next := e.Clone()
	next.ActiveParticipant = delta.NextActiveParticipant
	next.MessageLog = append(next.MessageLog, message)
	return next, nil
}

// Validate checks the structural invariants of a stored encounter.
func (e *Encounter) Validate() error {
	if e.EncounterID == "" {
		return fmt.Errorf("encounter id is empty")
	}
	if e.Participants[0] == "" || e.Participants[1] == "" || e.Participants[0] == e.Participants[1] {
		return fmt.Errorf("encounter %s: participants must be two distinct ids", e.EncounterID)
	}
	if !e.HasParticipant(e.ActiveParticipant) {
		return fmt.Errorf("encounter %s: active participant %q is not a participant", e.EncounterID, e.ActiveParticipant)
	}
	return nil
}

// Instruction is one participant's submitted action for their turn.
type Instruction struct {
	EncounterID string `json:"encounter_id"`
	PlayerID    string `json:"player_id"`
	Payload     string `json:"payload"`
}

// Delta is the state change computed from a validated instruction.
type Delta struct {
	EncounterID           string `json:"encounter_id"`
	ActingParticipant     string `json:"acting_participant"`
	Instruction           string `json:"instruction"`
	Classification        string `json:"classification"`
	NextActiveParticipant string `json:"next_active_participant"`
	ExtraTurn             bool   `json:"extra_turn"`
	Turn                  int    `json:"turn"`
}

// InstructionResult is returned to the caller of a successful submission.
type InstructionResult struct {
	RunID             string `json:"run_id"`
	EncounterID       string `json:"encounter_id"`
	PlayerID          string `json:"player_id"`
	Delta             Delta  `json:"delta"`
	Message           string `json:"message"`
	ActiveParticipant string `json:"active_participant"`
	MessageLogLength  int    `json:"message_log_length"`
	Version           int64  `json:"version"`
}
