package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/semitae/internal/domain"
	"github.com/xiaot623/semitae/internal/generator"
	"github.com/xiaot623/semitae/internal/policy"
	"github.com/xiaot623/semitae/internal/processor"
	"github.com/xiaot623/semitae/internal/workflow"
	"github.com/xiaot623/semitae/tests/helpers"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := helpers.NewTestSQLiteStore(t)
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	orch := workflow.New(store, store, processor.New(engine), generator.NewTemplate(), nil, workflow.DefaultPolicy())
	return New(store, orch)
}

func TestCreateAndGetEncounter(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	enc, err := svc.CreateEncounter(ctx, domain.CreateEncounterRequest{ParticipantA: "p1", ParticipantB: "p2", Realm: "Eldaria"})
	require.NoError(t, err)
	assert.NotEmpty(t, enc.EncounterID)
	assert.Equal(t, "p1", enc.ActiveParticipant)
	assert.Equal(t, int64(1), enc.Version)

	got, err := svc.GetEncounter(ctx, " "+enc.EncounterID+" ")
	require.NoError(t, err)
	assert.Equal(t, enc.EncounterID, got.EncounterID)
	assert.Equal(t, [2]string{"p1", "p2"}, got.Participants)
	assert.Equal(t, "Eldaria", got.Realm)
}

func TestCreateEncounterRejectsSameParticipant(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateEncounter(context.Background(), domain.CreateEncounterRequest{ParticipantA: "p1", ParticipantB: "p1"})
	assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
}

func TestGetEncounterErrors(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.GetEncounter(context.Background(), "")
	assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
	_, err = svc.GetEncounter(context.Background(), "nope")
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestSubmitInstructionAndQueryRuns(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	enc, err := svc.CreateEncounter(ctx, domain.CreateEncounterRequest{ParticipantA: "p1", ParticipantB: "p2"})
	require.NoError(t, err)

	result, err := svc.SubmitInstruction(ctx, enc.EncounterID, domain.SubmitInstructionRequest{PlayerID: "p1", Payload: "Strike"})
	require.NoError(t, err)
	assert.Equal(t, "p2", result.ActiveParticipant)

	_, err = svc.SubmitInstruction(ctx, enc.EncounterID, domain.SubmitInstructionRequest{PlayerID: "p1", Payload: "Again"})
	assert.Equal(t, domain.CodeInvalidTurn, domain.CodeOf(err))

	runs, err := svc.ListRuns(ctx, enc.EncounterID, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, domain.RunStatusFailed, runs[0].Status)
	assert.Equal(t, domain.RunStatusSucceeded, runs[1].Status)

	runs, err = svc.ListRuns(ctx, enc.EncounterID, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	events, err := svc.GetRunEvents(ctx, result.RunID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventTypeRunStarted, events[0].Type)
	assert.Equal(t, domain.EventTypeRunSucceeded, events[len(events)-1].Type)

	_, err = svc.GetRunEvents(ctx, "run_missing", 0)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, 5, clampLimit(5))
	assert.Equal(t, maxListLimit, clampLimit(1000))
}

func TestGetRunEventsClampsLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	run := &domain.Run{RunID: "run_busy", EncounterID: "e1", PlayerID: "p1", Status: domain.RunStatusRunning, State: domain.StateLoaded, StartedAt: time.Now()}
	require.NoError(t, svc.store.CreateRun(ctx, run))
	for i := 0; i < maxListLimit+50; i++ {
		require.NoError(t, svc.recordEvent(ctx, run.RunID, domain.EventTypeStepRetry, domain.StepRetryPayload{Step: domain.StepProcess, Attempt: i + 1}))
	}

	events, err := svc.GetRunEvents(ctx, run.RunID, 0)
	require.NoError(t, err)
	assert.Len(t, events, defaultListLimit)

	events, err = svc.GetRunEvents(ctx, run.RunID, 1000)
	require.NoError(t, err)
	assert.Len(t, events, maxListLimit)

	events, err = svc.GetRunEvents(ctx, run.RunID, 7)
	require.NoError(t, err)
	assert.Len(t, events, 7)
}
