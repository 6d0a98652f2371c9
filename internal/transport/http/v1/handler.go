// Package v1 provides the versioned HTTP handlers of the encounter gateway.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/semitae/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Encounter API
	e.POST("/v1/encounters", h.CreateEncounter)
	e.GET("/v1/encounters/:encounter_id", h.GetEncounter)
	e.POST("/v1/encounters/:encounter_id/instructions", h.SubmitInstruction)

	// Run log API
	e.GET("/v1/encounters/:encounter_id/runs", h.ListRuns)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
