package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/semitae/internal/domain"
)

// invokeStep runs fn under the retry policy. Each attempt gets its own
// deadline derived from ctx. Terminal domain errors stop immediately,
// expiry of ctx yields TIMEOUT and an exhausted budget yields
// PROCESSING_FAILED wrapping the last cause.
func invokeStep[T any](ctx context.Context, r *run, step domain.StepName, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	p := r.o.policy

	ctx, span := r.o.tracer.Start(ctx, "workflow.step."+string(step),
		trace.WithAttributes(attribute.String("workflow.step", string(step))))
	defer span.End()

	attempts := 0
	var lastErr error
	operation := func() (T, error) {
		attempts++
		val, err := attempt(ctx, p.StepTimeout, fn)
		if err == nil {
			return val, nil
		}
		lastErr = err
		if domain.IsTerminal(err) || ctx.Err() != nil {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	notify := func(err error, next time.Duration) {
		log.Printf("WARN: run %s step %s attempt %d failed, retrying in %s: %v", r.id, step, attempts, next, err)
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("workflow.attempt", attempts),
			attribute.String("error", err.Error()),
		))
		r.record(domain.EventTypeStepRetry, domain.StepRetryPayload{
			Step:    step,
			Attempt: attempts,
			Error:   err.Error(),
			Backoff: next.Milliseconds(),
		})
	}

	val, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	span.SetAttributes(attribute.Int("workflow.attempts", attempts))
	if err == nil {
		return val, nil
	}

	err = classifyStepError(ctx, step, attempts, lastErr, err, r.o.policy.WorkflowTimeout)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return zero, err
}

func classifyStepError(ctx context.Context, step domain.StepName, attempts int, lastErr, retryErr error, workflowTimeout time.Duration) error {
	if ctx.Err() != nil {
		cause := lastErr
		if cause == nil {
			cause = ctx.Err()
		}
		return domain.WrapError(domain.CodeTimeout,
			fmt.Sprintf("workflow exceeded %s during %s step", workflowTimeout, step), cause)
	}
	if lastErr == nil {
		lastErr = retryErr
	}
	if domain.IsTerminal(lastErr) {
		return lastErr
	}
	return domain.WrapError(domain.CodeProcessingFailed,
		fmt.Sprintf("%s step failed after %d attempts", step, attempts), lastErr)
}

type stepOutcome[T any] struct {
	val T
	err error
}

// attempt runs fn once in its own goroutine so a step that ignores its
// context still yields when the attempt deadline passes. Panics are
// reported as transient errors.
func attempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan stepOutcome[T], 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- stepOutcome[T]{err: fmt.Errorf("step panicked: %v", rec)}
			}
		}()
		val, err := fn(attemptCtx)
		done <- stepOutcome[T]{val: val, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-attemptCtx.Done():
		err := attemptCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("attempt exceeded step timeout %s: %w", timeout, err)
		}
		return zero, err
	}
}
