// Package v1 provides the JSON HTTP handlers of the chat API.
package v1

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/service"
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

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	// Read-only views
	e.GET("/v1/models", h.ListModels)
	e.GET("/v1/models/remote", h.ListRemoteModels)
	e.GET("/v1/state", h.GetState)
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.GET("/v1/sessions/:session_id/export", h.ExportSession)

	// Session intents
	e.POST("/v1/sessions", h.CreateSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)
	e.POST("/v1/sessions/:session_id/select", h.SelectSession)
	e.POST("/v1/new-chat", h.BeginNewChat)
	e.PUT("/v1/new-chat", h.SetDraftTitle)
	e.DELETE("/v1/new-chat", h.CancelNewChat)
	e.PUT("/v1/model", h.SelectModel)
	e.POST("/v1/import", h.ImportSession)

	// Turns
	e.POST("/v1/sessions/:session_id/messages", h.SubmitMessage)
	e.POST("/v1/sessions/:session_id/retry", h.RetryReply)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func sessionIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("session_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid session id %q", domain.ErrValidation, c.Param("session_id"))
	}
	return id, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvocation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
}
