package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CurrentHandler resolves the freshest usable reading for the station,
// walking the fallback chain when the cache is stale.
func (s *Service) CurrentHandler(c *gin.Context) {
	stationID := s.stationID(c)

	entry, err := s.resolver.Current(c.Request.Context(), stationID)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	body, err := normalizedEntryBody(entry)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	reading, err := entry.Reading()
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"station_id":     stationID,
		"bucket_key":     entry.BucketKey,
		"relative_level": reading.RelativeLevel().String(),
		"data":           body,
	})
}

type historyQuery struct {
	Days int `form:"days,default=7" binding:"omitempty,min=1,max=31"`
}

// HistoryHandler resolves one reading per calendar day over the requested
// window, oldest first. Days without usable data are omitted from the result.
func (s *Service) HistoryHandler(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			ErrorType: HttpInvalidJsonError,
			Message:   "days must be between 1 and 31",
		})
		return
	}

	stationID := s.stationID(c)
	days, err := s.resolver.DailyRange(c.Request.Context(), stationID, q.Days)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	items := make([]gin.H, 0, len(days))
	for _, d := range days {
		body, err := normalizedEntryBody(d.Entry)
		if err != nil {
			continue
		}
		items = append(items, gin.H{
			"bucket_key": d.Key,
			"date":       d.Date.Format("2006-01-02"),
			"data":       body,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"station_id": stationID,
		"days":       q.Days,
		"count":      len(items),
		"items":      items,
	})
}

type hourlyQuery struct {
	Hours int `form:"hours,default=6" binding:"omitempty,min=1,max=48"`
}

// HourlyHandler resolves the trailing hourly readings, oldest first. Hours
// with no data anywhere are omitted.
func (s *Service) HourlyHandler(c *gin.Context) {
	var q hourlyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			ErrorType: HttpInvalidJsonError,
			Message:   "hours must be between 1 and 48",
		})
		return
	}

	stationID := s.stationID(c)
	hours, err := s.resolver.HourlyRange(c.Request.Context(), stationID, q.Hours)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	items := make([]gin.H, 0, len(hours))
	for _, h := range hours {
		body, err := normalizedEntryBody(h.Entry)
		if err != nil {
			continue
		}
		items = append(items, gin.H{
			"bucket_key": h.Key,
			"at":         h.At.Format("2006-01-02T15:04:05Z07:00"),
			"data":       body,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"station_id": stationID,
		"hours":      q.Hours,
		"count":      len(items),
		"items":      items,
	})
}
