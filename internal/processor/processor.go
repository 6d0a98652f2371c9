// Package processor validates instructions and computes state deltas.
package processor

import (
	"context"
	"fmt"

	"github.com/xiaot623/semitae/internal/domain"
	"github.com/xiaot623/semitae/internal/policy"
)

// Processor turns an instruction into a delta. Implementations must be
// pure: identical inputs yield identical outputs and no external state is
// touched, so the orchestrator may retry them freely.
type Processor interface {
	Process(ctx context.Context, encounter domain.Encounter, playerID, payload string) (*domain.Delta, error)
}

// Evaluator is the subset of the policy engine the processor needs.
type Evaluator interface {
	Evaluate(ctx context.Context, input policy.Input) (*policy.Decision, error)
}

// RuleProcessor judges instructions with a policy engine.
type RuleProcessor struct {
	rules Evaluator
}

var _ Processor = (*RuleProcessor)(nil)

// New creates a processor backed by rules.
func New(rules Evaluator) *RuleProcessor {
	return &RuleProcessor{rules: rules}
}

// Process validates payload for playerID against the encounter.
// A rule violation is returned as a VALIDATION_ERROR naming the first rule;
// any other error is a transient evaluation failure.
func (p *RuleProcessor) Process(ctx context.Context, encounter domain.Encounter, playerID, payload string) (*domain.Delta, error) {
	turn := len(encounter.MessageLog) + 1
	decision, err := p.rules.Evaluate(ctx, policy.Input{
		EncounterID:       encounter.EncounterID,
		Participants:      encounter.Participants[:],
		ActiveParticipant: encounter.ActiveParticipant,
		Realm:             encounter.Realm,
		Turn:              turn,
		PlayerID:          playerID,
		Instruction:       payload,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate rules: %w", err)
	}
	if len(decision.Violations) > 0 {
		return nil, domain.ValidationError(decision.Violations[0], decision.Violations)
	}
	// Rules may not admit outsiders even if a custom module forgets to.
	if !encounter.HasParticipant(playerID) {
		return nil, domain.ValidationError("player_not_participant", []string{"player_not_participant"})
	}

	next := encounter.OtherParticipant(playerID)
	if decision.ExtraTurn {
		next = playerID
	}

	classification := decision.Classification
	if classification == "" {
		classification = "Act"
	}

	return &domain.Delta{
		EncounterID:           encounter.EncounterID,
		ActingParticipant:     playerID,
		Instruction:           payload,
		Classification:        classification,
		NextActiveParticipant: next,
		ExtraTurn:             decision.ExtraTurn,
		Turn:                  turn,
	}, nil
}
