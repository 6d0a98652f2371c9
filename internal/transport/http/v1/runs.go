package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/semitae/internal/domain"
)

// ListRuns returns the most recent workflow runs of an encounter.
// GET /v1/encounters/:encounter_id/runs
func (h *Handler) ListRuns(c echo.Context) error {
	runs, err := h.service.ListRuns(c.Request().Context(), c.Param("encounter_id"), queryLimit(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, domain.ListRunsResponse{Runs: runs})
}

// GetRunEvents retrieves events for a run.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	events, err := h.service.GetRunEvents(c.Request().Context(), c.Param("run_id"), queryLimit(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, domain.ListEventsResponse{Events: events})
}
