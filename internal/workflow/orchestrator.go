// Package workflow drives the instruction state machine: load, turn check,
// process, generate and persist, with per-step timeouts and retries.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/semitae/internal/adapter/ingress"
	"github.com/xiaot623/semitae/internal/config"
	"github.com/xiaot623/semitae/internal/domain"
	"github.com/xiaot623/semitae/internal/generator"
	"github.com/xiaot623/semitae/internal/processor"
	"github.com/xiaot623/semitae/internal/repository"
)

const (
	tracerName    = "github.com/xiaot623/semitae/internal/workflow"
	recordTimeout = 2 * time.Second
)

// Notifier announces a completed turn. Failures are logged only.
type Notifier interface {
	NotifyTurn(ctx context.Context, evt ingress.TurnEvent) error
}

// Policy bounds a single run.
type Policy struct {
	WorkflowTimeout time.Duration
	StepTimeout     time.Duration
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		WorkflowTimeout: 10 * time.Second,
		StepTimeout:     3 * time.Second,
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// PolicyFromConfig builds a Policy from loaded configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		WorkflowTimeout: cfg.WorkflowTimeout,
		StepTimeout:     cfg.StepTimeout,
		MaxAttempts:     cfg.StepMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.WorkflowTimeout <= 0 {
		p.WorkflowTimeout = def.WorkflowTimeout
	}
	if p.StepTimeout <= 0 {
		p.StepTimeout = def.StepTimeout
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         p.MaxInterval,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		o.tracer = tp.Tracer(tracerName)
	}
}

// Orchestrator sequences the instruction workflow.
type Orchestrator struct {
	encounters repository.EncounterStore
	recorder   repository.RunRecorder
	processor  processor.Processor
	generator  generator.Generator
	notifier   Notifier
	policy     Policy
	tracer     trace.Tracer

	notifications sync.WaitGroup
}

// New creates an orchestrator. recorder and notifier may be nil.
func New(encounters repository.EncounterStore, recorder repository.RunRecorder, proc processor.Processor, gen generator.Generator, notifier Notifier, policy Policy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		encounters: encounters,
		recorder:   recorder,
		processor:  proc,
		generator:  gen,
		notifier:   notifier,
		policy:     policy.withDefaults(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the effective policy.
func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// Wait blocks until in-flight turn notifications have finished.
func (o *Orchestrator) Wait() {
	o.notifications.Wait()
}

// SubmitInstruction runs the workflow for one instruction. Either the
// encounter advances by exactly one version or it is left untouched and a
// typed error is returned.
func (o *Orchestrator) SubmitInstruction(ctx context.Context, in domain.Instruction) (*domain.InstructionResult, error) {
	in.EncounterID = strings.TrimSpace(in.EncounterID)
	in.PlayerID = strings.TrimSpace(in.PlayerID)
	if in.EncounterID == "" {
		return nil, domain.NewError(domain.CodeInvalidArgument, "encounter_id is required")
	}
	if in.PlayerID == "" {
		return nil, domain.NewError(domain.CodeInvalidArgument, "player_id is required")
	}

	r := &run{
		o:         o,
		id:        "run_" + uuid.New().String()[:8],
		recordCtx: context.WithoutCancel(ctx),
	}
	r.machine = newMachine(r.stateChanged)

	runCtx, cancel := context.WithTimeout(ctx, o.policy.WorkflowTimeout)
	defer cancel()

	runCtx, span := o.tracer.Start(runCtx, "workflow.SubmitInstruction", trace.WithAttributes(
		attribute.String("workflow.run_id", r.id),
		attribute.String("encounter.id", in.EncounterID),
		attribute.String("encounter.player_id", in.PlayerID),
	))
	defer span.End()

	r.start(in)

	result, err := o.execute(runCtx, r, in)
	if err != nil {
		r.machine.fail()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("workflow.error_code", string(domain.CodeOf(err))))
		r.finishFailed(err)
		log.Printf("WARN: run %s for encounter %s failed: %v", r.id, in.EncounterID, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("encounter.version", result.Version),
		attribute.String("encounter.active_participant", result.ActiveParticipant),
	)
	span.SetStatus(codes.Ok, "")
	r.finishSucceeded(result)
	o.notifyAsync(r, result)
	log.Printf("INFO: run %s advanced encounter %s to version %d (active=%s)", r.id, result.EncounterID, result.Version, result.ActiveParticipant)
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, in domain.Instruction) (*domain.InstructionResult, error) {
	// Step 1: load.
	loaded, err := o.encounters.GetEncounter(ctx, in.EncounterID)
	if err != nil {
		return nil, o.interpret(ctx, err, "load")
	}
	if err := r.machine.advance(domain.StateLoaded); err != nil {
		return nil, err
	}
	snapshot := loaded.Clone()

	// Step 2: turn check.
	if in.PlayerID != snapshot.ActiveParticipant {
		return nil, domain.InvalidTurnError(in.PlayerID, snapshot.ActiveParticipant)
	}

	// Step 3: process.
	delta, err := invokeStep(ctx, r, domain.StepProcess, func(stepCtx context.Context) (*domain.Delta, error) {
		return o.processor.Process(stepCtx, snapshot.Clone(), in.PlayerID, in.Payload)
	})
	if err != nil {
		return nil, err
	}
	if delta == nil {
		return nil, domain.NewError(domain.CodeProcessingFailed, "processor returned no delta")
	}
	if err := r.machine.advance(domain.StateProcessed); err != nil {
		return nil, err
	}

	// Step 4: generate. Every attempt sees its own copy of the delta.
	computed := *delta
	message, err := invokeStep(ctx, r, domain.StepGenerate, func(stepCtx context.Context) (string, error) {
		d := computed
		msg, err := o.generator.Generate(stepCtx, snapshot.Clone(), &d)
		if err == nil && strings.TrimSpace(msg) == "" {
			return "", domain.GenerationError("generator returned an empty message", nil)
		}
		return msg, err
	})
	if err != nil {
		return nil, err
	}
	if err := r.machine.advance(domain.StateMessageGenerated); err != nil {
		return nil, err
	}

	// Step 5: persist.
	updated, err := o.persist(ctx, snapshot, &computed, message)
	if err != nil {
		return nil, err
	}
	if err := r.machine.advance(domain.StatePersisted); err != nil {
		return nil, err
	}

	return &domain.InstructionResult{
		RunID:             r.id,
		EncounterID:       updated.EncounterID,
		PlayerID:          in.PlayerID,
		Delta:             computed,
		Message:           message,
		ActiveParticipant: updated.ActiveParticipant,
		MessageLogLength:  len(updated.MessageLog),
		Version:           updated.Version,
	}, nil
}

func (o *Orchestrator) persist(ctx context.Context, encounter domain.Encounter, delta *domain.Delta, message string) (*domain.Encounter, error) {
	ctx, span := o.tracer.Start(ctx, "workflow.persist", trace.WithAttributes(
		attribute.Int64("encounter.expected_version", encounter.Version),
	))
	defer span.End()

	// No write may start once the run is out of time.
	if err := ctx.Err(); err != nil {
		return nil, o.interpret(ctx, err, "persist")
	}

	next, err := encounter.Apply(delta, message)
	if err != nil {
		return nil, domain.WrapError(domain.CodeProcessingFailed, "apply delta", err)
	}

	updated, err := o.encounters.ConditionalUpdate(ctx, encounter.EncounterID, encounter.Version, repository.EncounterFields{
		ActiveParticipant: next.ActiveParticipant,
		MessageLog:        next.MessageLog,
	})
	if err != nil {
		err = o.interpret(ctx, err, "persist")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return updated, nil
}

// interpret keeps typed errors and maps bare failures caused by the run
// deadline to TIMEOUT.
func (o *Orchestrator) interpret(ctx context.Context, err error, op string) error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	if ctx.Err() != nil {
		return domain.WrapError(domain.CodeTimeout, fmt.Sprintf("workflow exceeded %s during %s", o.policy.WorkflowTimeout, op), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// notifyAsync announces the turn in the background.
func (o *Orchestrator) notifyAsync(r *run, result *domain.InstructionResult) {
	if o.notifier == nil {
		return
	}
	evt := ingress.TurnEvent{
		EncounterID:       result.EncounterID,
		RunID:             result.RunID,
		ActingParticipant: result.PlayerID,
		ActiveParticipant: result.ActiveParticipant,
		Message:           result.Message,
		Version:           result.Version,
	}
	o.notifications.Add(1)
	go func() {
		defer o.notifications.Done()
		o.notify(r.recordCtx, evt)
	}()
}

func (o *Orchestrator) notify(ctx context.Context, evt ingress.TurnEvent) {
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := o.notifier.NotifyTurn(ctx, evt); err != nil {
		log.Printf("WARN: failed to notify turn for encounter %s: %v", evt.EncounterID, err)
	}
}

// run is the bookkeeping of one SubmitInstruction call.
type run struct {
	o       *Orchestrator
	id      string
	machine *machine
	// recordCtx outlives the run deadline so failures are still recorded.
	recordCtx context.Context
}

func (r *run) start(in domain.Instruction) {
	if r.o.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.recordCtx, recordTimeout)
	defer cancel()
	err := r.o.recorder.CreateRun(ctx, &domain.Run{
		RunID:       r.id,
		EncounterID: in.EncounterID,
		PlayerID:    in.PlayerID,
		Status:      domain.RunStatusRunning,
		State:       domain.StatePending,
		StartedAt:   time.Now(),
	})
	if err != nil {
		log.Printf("WARN: failed to create run %s: %v", r.id, err)
		return
	}
	r.record(domain.EventTypeRunStarted, domain.RunStartedPayload{
		EncounterID: in.EncounterID,
		PlayerID:    in.PlayerID,
		Payload:     in.Payload,
	})
}

func (r *run) stateChanged(from, to domain.WorkflowState) {
	r.record(domain.EventTypeStateChanged, domain.StateChangedPayload{From: from, To: to})
}

func (r *run) finishSucceeded(result *domain.InstructionResult) {
	r.record(domain.EventTypeRunSucceeded, domain.RunSucceededPayload{
		Version:           result.Version,
		ActiveParticipant: result.ActiveParticipant,
		Message:           result.Message,
	})
	r.complete(domain.RunStatusSucceeded, "", nil)
}

func (r *run) finishFailed(err error) {
	body := domain.ToErrorBody(err)
	r.record(domain.EventTypeRunFailed, domain.RunFailedPayload{Code: body.Code, Message: body.Message})
	data, merr := json.Marshal(body)
	if merr != nil {
		data = nil
	}
	r.complete(domain.RunStatusFailed, body.Code, data)
}

func (r *run) complete(status domain.RunStatus, code domain.ErrorCode, errData []byte) {
	if r.o.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.recordCtx, recordTimeout)
	defer cancel()
	if err := r.o.recorder.CompleteRun(ctx, r.id, status, r.machine.current(), code, errData); err != nil {
		log.Printf("WARN: failed to complete run %s: %v", r.id, err)
	}
}

// record appends an event to the run log.
func (r *run) record(eventType domain.EventType, payload interface{}) {
	if r.o.recorder == nil {
		return
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("WARN: failed to marshal %s payload: %v", eventType, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.recordCtx, recordTimeout)
	defer cancel()
	err = r.o.recorder.CreateEvent(ctx, &domain.Event{
		EventID: "evt_" + uuid.New().String()[:8],
		RunID:   r.id,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	})
	if err != nil {
		log.Printf("WARN: failed to record %s event for run %s: %v", eventType, r.id, err)
	}
}
