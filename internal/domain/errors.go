package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures returned across the gateway boundary.
type ErrorCode string

const (
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeInvalidTurn      ErrorCode = "INVALID_TURN"
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodeGeneration       ErrorCode = "GENERATION_ERROR"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeProcessingFailed ErrorCode = "PROCESSING_FAILED"
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeInternal         ErrorCode = "INTERNAL"
)

// Error is the typed failure used throughout the service.
type Error struct {
	Code       ErrorCode
	Message    string
	Rule       string
	Violations []string
	Cause      error
}

// NewError creates a typed error without a cause.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a typed error around cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so sentinel comparisons
// such as errors.Is(err, ErrConflict) work on wrapped errors.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound         = NewError(CodeNotFound, "not found")
	ErrInvalidTurn      = NewError(CodeInvalidTurn, "invalid turn")
	ErrValidation       = NewError(CodeValidation, "validation failed")
	ErrGeneration       = NewError(CodeGeneration, "message generation failed")
	ErrConflict         = NewError(CodeConflict, "conflict")
	ErrTimeout          = NewError(CodeTimeout, "timeout")
	ErrProcessingFailed = NewError(CodeProcessingFailed, "processing failed")
	ErrInvalidArgument  = NewError(CodeInvalidArgument, "invalid argument")
)

// NotFoundError reports an unknown encounter.
func NotFoundError(encounterID string) *Error {
	return NewError(CodeNotFound, fmt.Sprintf("encounter %s not found", encounterID))
}

// InvalidTurnError reports a submission from a participant who is not active.
func InvalidTurnError(playerID, activeParticipant string) *Error {
	return NewError(CodeInvalidTurn, fmt.Sprintf("it is not %s's turn (active participant is %s)", playerID, activeParticipant))
}

// ValidationError reports an illegal instruction. rule names the first
// violated rule; violations lists all of them.
func ValidationError(rule string, violations []string) *Error {
	return &Error{
		Code:       CodeValidation,
		Message:    fmt.Sprintf("instruction violates rule %s", rule),
		Rule:       rule,
		Violations: violations,
	}
}

// GenerationError reports a failed message generation attempt.
func GenerationError(message string, cause error) *Error {
	return WrapError(CodeGeneration, message, cause)
}

// ConflictError reports a lost optimistic-concurrency race.
func ConflictError(encounterID string, expectedVersion int64) *Error {
	return NewError(CodeConflict, fmt.Sprintf("encounter %s changed since version %d", encounterID, expectedVersion))
}

// CodeOf returns the code of the first typed error in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsTerminal reports whether err reflects a caller/state mismatch that must
// not be retried.
func IsTerminal(err error) bool {
	switch CodeOf(err) {
	case CodeNotFound, CodeInvalidTurn, CodeValidation, CodeConflict, CodeInvalidArgument:
		return true
	}
	return false
}

// ErrorBody is the structured representation of an error at the boundary.
type ErrorBody struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Rule       string    `json:"rule,omitempty"`
	Violations []string  `json:"violations,omitempty"`
}

// ToErrorBody converts any error into its boundary record.
func ToErrorBody(err error) *ErrorBody {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &ErrorBody{Code: e.Code, Message: e.Error(), Rule: e.Rule, Violations: e.Violations}
	}
	return &ErrorBody{Code: CodeInternal, Message: err.Error()}
}
