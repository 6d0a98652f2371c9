package domain

// WorkflowState is a state of the instruction-processing state machine.
type WorkflowState string

const (
	StatePending          WorkflowState = "PENDING"
	StateLoaded           WorkflowState = "LOADED"
	StateProcessed        WorkflowState = "PROCESSED"
	StateMessageGenerated WorkflowState = "MESSAGE_GENERATED"
	StatePersisted        WorkflowState = "PERSISTED"
	StateFailed           WorkflowState = "FAILED"
)

// RunStatus represents the status of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// EventType represents the type of a run event.
type EventType string

const (
	EventTypeRunStarted   EventType = "run_started"
	EventTypeStateChanged EventType = "state_changed"
	EventTypeStepRetry    EventType = "step_retry"
	EventTypeRunSucceeded EventType = "run_succeeded"
	EventTypeRunFailed    EventType = "run_failed"
)

// StepName identifies a retryable workflow step.
type StepName string

const (
	StepProcess  StepName = "process"
	StepGenerate StepName = "generate"
)
