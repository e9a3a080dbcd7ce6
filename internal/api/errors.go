package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"taskcal/internal/domain"
)

// statusForError maps an error kind to its HTTP status.
func statusForError(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError renders err as a JSON message. Store failures never leak their
// underlying cause to the caller.
func writeError(c echo.Context, err error) error {
	status := statusForError(err)
	body := messageResponse{Message: err.Error(), Field: domain.FieldOf(err)}
	if status == http.StatusInternalServerError {
		body = messageResponse{Message: "store unavailable"}
	}
	return c.JSON(status, body)
}
