package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/resolver"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/store"
)

const (
	HttpInternalError     = "internal_error"
	HttpInvalidKeyError   = "invalid_bucket_key"
	HttpInvalidJsonError  = "invalid_json"
	HttpNotFoundError     = "not_found"
	HttpNoRecentDataError = "no_recent_data"
	HttpCorruptEntryError = "corrupt_entry"
)

// ErrorResponse is the error response body for all API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// writeDomainError maps domain sentinels onto HTTP status codes and the
// structured error body. Unrecognized errors are logged and reported as 500
// without leaking internals to the client.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bucket.ErrInvalidKey):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			ErrorType: HttpInvalidKeyError,
			Message:   "Bucket key must be 8 or 10 digits",
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			ErrorType: HttpNotFoundError,
			Message:   "No cached entry for this key",
		})
	case errors.Is(err, store.ErrBadPayload):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			ErrorType: HttpInvalidJsonError,
			Message:   "Body must be a JSON object",
		})
	case errors.Is(err, store.ErrCorrupt):
		slog.Error("Corrupt cache entry served", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			ErrorType: HttpCorruptEntryError,
			Message:   "Stored entry is unreadable",
		})
	case errors.Is(err, resolver.ErrNoRecentData):
		c.JSON(http.StatusNotFound, ErrorResponse{
			ErrorType: HttpNoRecentDataError,
			Message:   err.Error(),
		})
	default:
		slog.Error("Unhandled API error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			ErrorType: HttpInternalError,
			Message:   "Internal error",
		})
	}
}
