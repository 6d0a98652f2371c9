package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/xiaot623/semitae/internal/domain"
)

const staleRunBatch = 100

// StaleRunAge is how long a run may stay RUNNING before the sweeper fails it.
// A live run always finishes within its workflow timeout.
func (s *Service) StaleRunAge() time.Duration {
	return 2 * s.orchestrator.Policy().WorkflowTimeout
}

// RunStaleRunMonitor periodically fails runs left RUNNING by a crashed process.
func (s *Service) RunStaleRunMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStaleRuns(ctx, time.Now().Add(-s.StaleRunAge()))
		}
	}
}

// sweepStaleRuns fails RUNNING runs started before cutoff and returns how
// many it closed.
func (s *Service) sweepStaleRuns(ctx context.Context, cutoff time.Time) int {
	sweepCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	stale, err := s.store.ListStaleRuns(sweepCtx, cutoff, staleRunBatch)
	if err != nil {
		log.Printf("WARN: stale run sweep failed: %v", err)
		return 0
	}

	expired := 0
	for _, run := range stale {
		body := &domain.ErrorBody{
			Code:    domain.CodeTimeout,
			Message: fmt.Sprintf("run abandoned in state %s", run.State),
		}
		errData, _ := json.Marshal(body)

		updated, err := s.store.ExpireRun(sweepCtx, run.RunID, domain.CodeTimeout, errData)
		if err != nil {
			log.Printf("WARN: failed to expire run %s: %v", run.RunID, err)
			continue
		}
		if !updated {
			continue
		}
		expired++

		payload := domain.RunFailedPayload{Code: body.Code, Message: body.Message}
		if err := s.recordEvent(sweepCtx, run.RunID, domain.EventTypeRunFailed, payload); err != nil {
			log.Printf("WARN: failed to record expiry event for run %s: %v", run.RunID, err)
		}
	}
	if expired > 0 {
		log.Printf("INFO: expired %d stale runs", expired)
	}
	return expired
}
