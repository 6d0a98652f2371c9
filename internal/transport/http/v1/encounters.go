package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/semitae/internal/domain"
)

// CreateEncounter starts a new encounter.
// POST /v1/encounters
func (h *Handler) CreateEncounter(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.CreateEncounterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	enc, err := h.service.CreateEncounter(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, enc)
}

// GetEncounter returns the current encounter record.
// GET /v1/encounters/:encounter_id
func (h *Handler) GetEncounter(c echo.Context) error {
	enc, err := h.service.GetEncounter(c.Request().Context(), c.Param("encounter_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, enc)
}

// SubmitInstruction runs one turn of the encounter.
// POST /v1/encounters/:encounter_id/instructions
func (h *Handler) SubmitInstruction(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.SubmitInstructionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.service.SubmitInstruction(ctx, c.Param("encounter_id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
