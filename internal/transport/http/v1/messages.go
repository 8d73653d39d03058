package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

// SubmitMessage runs one conversation turn.
// POST /v1/sessions/:session_id/messages
func (h *Handler) SubmitMessage(c echo.Context) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return errorJSON(c, err)
	}

	var req domain.SubmitMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	turn, err := h.service.SubmitUtterance(c.Request().Context(), sessionID, req.Content, req.ModelID)
	return h.turnResponse(c, turn, err)
}

// RetryReply asks the model again for the last unanswered user message.
// POST /v1/sessions/:session_id/retry
func (h *Handler) RetryReply(c echo.Context) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return errorJSON(c, err)
	}

	var req domain.RetryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	turn, err := h.service.RetryReply(c.Request().Context(), sessionID, req.ModelID)
	return h.turnResponse(c, turn, err)
}

// turnResponse reports a turn. Failed turns still carry the stored user
// message so the client can offer a retry.
func (h *Handler) turnResponse(c echo.Context, turn *domain.Turn, err error) error {
	if turn == nil {
		return errorJSON(c, err)
	}

	resp := domain.TurnResponse{Turn: turn}
	if rec, getErr := h.service.GetSession(c.Request().Context(), turn.SessionID); getErr == nil {
		resp.Session = rec
	}
	if err != nil {
		return c.JSON(statusFor(err), map[string]interface{}{
			"error": err.Error(),
			"turn":  resp.Turn,
		})
	}
	return c.JSON(http.StatusOK, resp)
}
