package v1

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ExportSession downloads a session as JSON.
// GET /v1/sessions/:session_id/export
func (h *Handler) ExportSession(c echo.Context) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return errorJSON(c, err)
	}

	doc, err := h.service.ExportSession(c.Request().Context(), sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	data, err := h.service.MarshalExport(doc)
	if err != nil {
		return errorJSON(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.FileName()))
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

// ImportSession recreates an exported session.
// POST /v1/import
func (h *Handler) ImportSession(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
	}

	doc, err := h.service.ParseExport(body)
	if err != nil {
		return errorJSON(c, err)
	}
	rec, err := h.service.ImportSession(c.Request().Context(), doc)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}
