// Package response writes the chat widget's wire envelopes. The browser
// client expects flat objects: {"reply": ...} on success and {"error": ...}
// on every failure.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const contentType = "application/json; charset=utf-8"

// JSON sends payload with the widget's content type.
func JSON(c echo.Context, status int, payload any) error {
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	return c.JSON(status, payload)
}

// Reply sends a 200 with the assistant's text.
func Reply(c echo.Context, text string) error {
	return JSON(c, http.StatusOK, map[string]string{"reply": text})
}

// Error sends {"error": message} with the given status.
func Error(c echo.Context, status int, message string) error {
	return JSON(c, status, map[string]string{"error": message})
}

// BadRequest sends a 400 error envelope.
func BadRequest(c echo.Context, message string) error {
	return Error(c, http.StatusBadRequest, message)
}

// InternalError sends a 500 error envelope.
func InternalError(c echo.Context, message string) error {
	return Error(c, http.StatusInternalServerError, message)
}
