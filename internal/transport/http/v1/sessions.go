package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

// GetState returns the UI snapshot.
// GET /v1/state
func (h *Handler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.State())
}

// ListSessions lists sessions, newest first.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": h.service.ListSessions(),
	})
}

// GetSession returns a session with its messages.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return errorJSON(c, err)
	}

	rec, err := h.service.GetSession(c.Request().Context(), sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// CreateSession creates a session from the new-chat form.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req domain.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	var (
		rec *domain.SessionRecord
		err error
	)
	if req.Skip {
		rec, err = h.service.CreateSessionSkipTitle(ctx)
	} else {
		rec, err = h.service.CreateSession(ctx, req.Title)
	}
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// DeleteSession deletes a session. Unknown ids succeed.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return errorJSON(c, err)
	}

	if err := h.service.DeleteSession(c.Request().Context(), sessionID); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SelectSession makes a session current.
// POST /v1/sessions/:session_id/select
func (h *Handler) SelectSession(c echo.Context) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return errorJSON(c, err)
	}

	if _, err := h.service.SelectSession(c.Request().Context(), sessionID); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, h.service.State())
}

// BeginNewChat opens the new-chat form.
// POST /v1/new-chat
func (h *Handler) BeginNewChat(c echo.Context) error {
	h.service.BeginNewChat()
	return c.JSON(http.StatusOK, h.service.State())
}

// SetDraftTitle stores the title typed so far.
// PUT /v1/new-chat
func (h *Handler) SetDraftTitle(c echo.Context) error {
	var req domain.DraftTitleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	h.service.SetDraftTitle(req.DraftTitle)
	return c.JSON(http.StatusOK, h.service.State())
}

// CancelNewChat closes the new-chat form.
// DELETE /v1/new-chat
func (h *Handler) CancelNewChat(c echo.Context) error {
	h.service.CancelNewChat()
	return c.JSON(http.StatusOK, h.service.State())
}

// SelectModel selects the model for the next turn.
// PUT /v1/model
func (h *Handler) SelectModel(c echo.Context) error {
	var req domain.SelectModelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	selector := req.ModelID
	if selector == "" {
		selector = req.Label
	}
	if _, err := h.service.SelectModel(selector); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, h.service.State())
}

// ListModels returns the model catalog.
// GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Models())
}

// ListRemoteModels returns the models the provider reports.
// GET /v1/models/remote
func (h *Handler) ListRemoteModels(c echo.Context) error {
	list, err := h.service.RemoteModels(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   list,
	})
}
