// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quotecore/internal/modules/availability"
	"quotecore/internal/modules/quote"
	"quotecore/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps domain errors to status codes. Anything unknown is
// logged by the caller's middleware and reported as a bare 500.
func writeServiceError(c *gin.Context, err error) {
	var (
		valErr  *types.ValidationError
		confErr *types.ConfigurationError
	)
	switch {
	case errors.As(err, &valErr):
		writeJSON(c, http.StatusUnprocessableEntity, errorResponse{Error: valErr.Error(), Field: valErr.Field})
	case errors.As(err, &confErr):
		writeError(c, http.StatusServiceUnavailable, "pricing unavailable: "+confErr.Reason)
	case errors.Is(err, quote.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, quote.ErrInvalidState),
		errors.Is(err, quote.ErrConflict),
		errors.Is(err, availability.ErrCapacityExceeded),
		errors.Is(err, availability.ErrAlreadyBooked):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
