package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/semitae/internal/domain"
)

// ListRuns returns the most recent workflow runs of an encounter.
func (s *Service) ListRuns(ctx context.Context, encounterID string, limit int) ([]domain.Run, error) {
	encounterID = strings.TrimSpace(encounterID)
	if encounterID == "" {
		return nil, domain.NewError(domain.CodeInvalidArgument, "encounter_id is required")
	}
	runs, err := s.store.ListRuns(ctx, encounterID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetRunEvents returns the recorded events of a run in order.
func (s *Service) GetRunEvents(ctx context.Context, runID string, limit int) ([]domain.Event, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, domain.NewError(domain.CodeNotFound, fmt.Sprintf("run %s not found", runID))
	}
	events, err := s.store.GetEvents(ctx, runID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	return events, nil
}
