// Package repository defines the storage interfaces and their SQLite implementation.
package repository

import (
	"context"
	"time"

	"github.com/xiaot623/semitae/internal/domain"
)

// EncounterFields are the mutable fields written by a conditional update.
type EncounterFields struct {
	ActiveParticipant string
	MessageLog        []string
}

// EncounterStore is the durable mapping from encounter id to record.
type EncounterStore interface {
	// CreateEncounter persists a new encounter.
	CreateEncounter(ctx context.Context, encounter *domain.Encounter) error
	// GetEncounter returns the encounter or a NOT_FOUND error.
	GetEncounter(ctx context.Context, encounterID string) (*domain.Encounter, error)
	// ConditionalUpdate writes fields only if the stored version equals
	// expectedVersion, returning the updated record or a CONFLICT error.
	ConditionalUpdate(ctx context.Context, encounterID string, expectedVersion int64, fields EncounterFields) (*domain.Encounter, error)
}

// RunRecorder stores workflow run traces. It never touches encounter records.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	CompleteRun(ctx context.Context, runID string, status domain.RunStatus, state domain.WorkflowState, code domain.ErrorCode, errData []byte) error
	CreateEvent(ctx context.Context, event *domain.Event) error
}

// RunReader queries workflow run traces.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, encounterID string, limit int) ([]domain.Run, error)
	GetEvents(ctx context.Context, runID string, limit int) ([]domain.Event, error)
}

// RunSweeper finds and closes runs abandoned in RUNNING.
type RunSweeper interface {
	// ListStaleRuns returns RUNNING runs started before cutoff, oldest first.
	ListStaleRuns(ctx context.Context, cutoff time.Time, limit int) ([]domain.Run, error)
	// ExpireRun fails a run only if it is still RUNNING.
	ExpireRun(ctx context.Context, runID string, code domain.ErrorCode, errData []byte) (bool, error)
}

// Store bundles everything the service persists.
type Store interface {
	EncounterStore
	RunRecorder
	RunReader
	RunSweeper

	// Lifecycle
	Close() error
}
