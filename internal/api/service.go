// Package api exposes the cache over HTTP: a management surface mirroring the
// store verbatim, and a reader surface backed by the freshness resolver.
package api

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/resolver"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/station"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/store"
)

// stationHeader selects which station a request addresses; requests without
// it fall back to the configured default station.
const stationHeader = "X-Station-Id"

// Service carries the handler dependencies.
type Service struct {
	store          store.Store
	resolver       *resolver.Resolver
	defaultStation string
}

// NewService builds the API service.
func NewService(st store.Store, res *resolver.Resolver, defaultStation string) *Service {
	return &Service{
		store:          st,
		resolver:       res,
		defaultStation: defaultStation,
	}
}

// Register mounts all routes on the engine.
func (s *Service) Register(r *gin.Engine) {
	data := r.Group("/station-data")
	{
		data.GET("/list", s.ListHandler)
		data.DELETE("/cleanup", s.CleanupHandler)
		data.GET("/:key", s.GetEntryHandler)
		data.POST("/:key", s.PutEntryHandler)
		data.DELETE("/:key", s.DeleteEntryHandler)
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/current", s.CurrentHandler)
		v1.GET("/history", s.HistoryHandler)
		v1.GET("/hourly", s.HourlyHandler)
	}
}

// stationID resolves the request's station from the header, falling back to
// the configured default.
func (s *Service) stationID(c *gin.Context) string {
	if id := c.GetHeader(stationHeader); id != "" {
		return id
	}
	return s.defaultStation
}

// entryBody renders an entry the way it is stored on disk: the upstream
// payload fields verbatim plus the metadata block.
func entryBody(e *store.Entry) (gin.H, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.Payload, &fields); err != nil {
		return nil, store.ErrCorrupt
	}

	body := gin.H{}
	for k, v := range fields {
		body[k] = v
	}
	body["metadata"] = e.Metadata
	return body, nil
}

// normalizedEntryBody is entryBody with absent or empty level and discharge
// values replaced by "0", so chart clients never divide by a missing field.
func normalizedEntryBody(e *store.Entry) (gin.H, error) {
	body, err := entryBody(e)
	if err != nil {
		return nil, err
	}
	for _, field := range []string{"level1", "dischg"} {
		raw, ok := body[field].(json.RawMessage)
		if !ok {
			body[field] = "0"
			continue
		}
		var val station.FlexValue
		if err := json.Unmarshal(raw, &val); err != nil || strings.TrimSpace(string(val)) == "" {
			body[field] = "0"
		}
	}
	return body, nil
}
