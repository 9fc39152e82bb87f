package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
)

// maxBodyBytes bounds POST bodies; upstream readings are a few hundred bytes.
const maxBodyBytes = 1 << 20

// ListHandler returns the station's bucket keys, most recent first.
func (s *Service) ListHandler(c *gin.Context) {
	stationID := s.stationID(c)

	keys, err := s.store.List(c.Request.Context(), stationID)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"station_id": stationID,
		"keys":       keys,
		"count":      len(keys),
	})
}

type cleanupQuery struct {
	Cutoff string `form:"cutoff" binding:"required"`
}

// CleanupHandler deletes every entry older than the cutoff key. Only keys of
// the cutoff's width are touched, so an 8-digit cutoff leaves hourly entries
// alone.
func (s *Service) CleanupHandler(c *gin.Context) {
	var q cleanupQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			ErrorType: HttpInvalidKeyError,
			Message:   "Missing cutoff query parameter",
		})
		return
	}
	if err := bucket.ValidateKey(q.Cutoff); err != nil {
		writeDomainError(c, err)
		return
	}

	stationID := s.stationID(c)
	removed, err := s.store.PruneBefore(c.Request.Context(), stationID, q.Cutoff)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	slog.Info("Cache pruned", "station_id", stationID, "cutoff", q.Cutoff, "removed", removed)
	c.JSON(http.StatusOK, gin.H{
		"station_id": stationID,
		"cutoff":     q.Cutoff,
		"removed":    removed,
	})
}

// GetEntryHandler returns one cached entry verbatim, with empty level and
// discharge fields normalized to "0".
func (s *Service) GetEntryHandler(c *gin.Context) {
	entry, err := s.store.Get(c.Request.Context(), s.stationID(c), c.Param("key"))
	if err != nil {
		writeDomainError(c, err)
		return
	}

	body, err := normalizedEntryBody(entry)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// PutEntryHandler upserts a raw payload under the key. The stored entry is
// echoed back so callers see the metadata the write produced.
func (s *Service) PutEntryHandler(c *gin.Context) {
	bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			ErrorType: HttpInternalError,
			Message:   "Failed to read request body",
		})
		return
	}

	entry, err := s.store.Put(c.Request.Context(), s.stationID(c), c.Param("key"), json.RawMessage(bodyBytes))
	if err != nil {
		writeDomainError(c, err)
		return
	}

	body, err := entryBody(entry)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// DeleteEntryHandler removes one cached entry.
func (s *Service) DeleteEntryHandler(c *gin.Context) {
	stationID := s.stationID(c)
	key := c.Param("key")

	if err := s.store.Delete(c.Request.Context(), stationID, key); err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"station_id": stationID,
		"bucket_key": key,
		"status":     "deleted",
	})
}
