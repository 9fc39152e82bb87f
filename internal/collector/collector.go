// Package collector drives the write path: periodic fan-out fetches of every
// configured station, persisted into the cache store under the current hourly
// bucket.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/store"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/upstream"
)

const defaultConcurrency = 4

// StationResult records the outcome of one station within a cycle.
type StationResult struct {
	StationID string
	BucketKey string
	Usable    bool
	Err       error
}

// CycleSummary aggregates one collection cycle across all stations.
type CycleSummary struct {
	CycleID   uuid.UUID
	StartedAt time.Time
	Duration  time.Duration
	Succeeded int
	Unusable  int
	Failed    int
	Results   []StationResult
}

// Collector fetches readings for a fixed station set and persists them.
type Collector struct {
	store       store.Store
	fetcher     upstream.Fetcher
	stations    []string
	concurrency int
	now         func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithConcurrency caps how many stations are fetched at once.
func WithConcurrency(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// New builds a Collector over the given store and fetcher.
func New(st store.Store, fetcher upstream.Fetcher, stations []string, opts ...Option) *Collector {
	c := &Collector{
		store:       st,
		fetcher:     fetcher,
		stations:    stations,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunCycle fetches every configured station concurrently and upserts each
// result under the current hourly bucket key. Stations are isolated: one
// station failing never aborts or skips its siblings, so the returned error
// is always nil and per-station outcomes live in the summary.
func (c *Collector) RunCycle(ctx context.Context) CycleSummary {
	start := c.now().In(bucket.Reference)
	summary := CycleSummary{
		CycleID:   uuid.New(),
		StartedAt: start,
		Results:   make([]StationResult, len(c.stations)),
	}

	key := bucket.HourlyKey(start)
	date := bucket.APIDateParam(start)

	slog.Info("[Collector] Cycle started",
		"cycle_id", summary.CycleID, "bucket_key", key, "stations", len(c.stations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, stationID := range c.stations {
		i, stationID := i, stationID
		g.Go(func() error {
			summary.Results[i] = c.collectStation(gctx, stationID, date, key)
			return nil
		})
	}
	g.Wait() // workers never return errors

	for _, res := range summary.Results {
		switch {
		case res.Err != nil:
			summary.Failed++
		case !res.Usable:
			summary.Unusable++
		default:
			summary.Succeeded++
		}
	}
	summary.Duration = c.now().Sub(start)

	slog.Info("[Collector] Cycle finished",
		"cycle_id", summary.CycleID,
		"succeeded", summary.Succeeded,
		"unusable", summary.Unusable,
		"failed", summary.Failed,
		"duration", summary.Duration)
	return summary
}

// collectStation fetches and persists one station. Unusable readings are
// still persisted so the cache reflects what upstream actually reported.
func (c *Collector) collectStation(ctx context.Context, stationID, date, key string) StationResult {
	res := StationResult{StationID: stationID, BucketKey: key}

	payload, err := c.fetcher.Fetch(ctx, stationID, date, "")
	if err != nil {
		slog.Warn("[Collector] Station fetch failed",
			"station_id", stationID, "bucket_key", key, "error", err)
		res.Err = err
		return res
	}

	entry, err := c.store.Put(ctx, stationID, key, payload)
	if err != nil {
		slog.Error("[Collector] Station persist failed",
			"station_id", stationID, "bucket_key", key, "error", err)
		res.Err = err
		return res
	}

	res.Usable = entry.Usable()
	if !res.Usable {
		slog.Warn("[Collector] Station reported no usable level",
			"station_id", stationID, "bucket_key", key)
	}
	return res
}
