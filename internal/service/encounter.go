package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/semitae/internal/domain"
)

// CreateEncounter starts a new encounter with participant A to act first.
func (s *Service) CreateEncounter(ctx context.Context, req domain.CreateEncounterRequest) (*domain.Encounter, error) {
	enc, err := domain.NewEncounter(uuid.New().String(), req.ParticipantA, req.ParticipantB, req.Realm, time.Now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateEncounter(ctx, enc); err != nil {
		return nil, domain.WrapError(domain.CodeInternal, "failed to create encounter", err)
	}
	log.Printf("INFO: created encounter %s (%s vs %s)", enc.EncounterID, enc.Participants[0], enc.Participants[1])
	return enc, nil
}

// GetEncounter returns the current encounter record.
func (s *Service) GetEncounter(ctx context.Context, encounterID string) (*domain.Encounter, error) {
	encounterID = strings.TrimSpace(encounterID)
	if encounterID == "" {
		return nil, domain.NewError(domain.CodeInvalidArgument, "encounter_id is required")
	}
	return s.store.GetEncounter(ctx, encounterID)
}

// SubmitInstruction runs the instruction workflow for encounterID.
func (s *Service) SubmitInstruction(ctx context.Context, encounterID string, req domain.SubmitInstructionRequest) (*domain.InstructionResult, error) {
	return s.orchestrator.SubmitInstruction(ctx, domain.Instruction{
		EncounterID: encounterID,
		PlayerID:    req.PlayerID,
		Payload:     req.Payload,
	})
}
