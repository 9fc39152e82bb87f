package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/store"
)

// fallbackTier is one ordered attempt in the search for a usable reading:
// a cache lookup or an upstream fetch for a specific logical day. Tiers are
// tried in order and the chain short-circuits on the first usable result.
type fallbackTier struct {
	name string
	run  func(ctx context.Context, stationID string) (*store.Entry, error)
}

// runTiers walks the chain. A tier error or an unusable result both mean
// "try the next tier"; only exhausting the chain is terminal.
func (r *Resolver) runTiers(ctx context.Context, stationID string, tiers []fallbackTier) (*store.Entry, error) {
	for _, t := range tiers {
		entry, err := t.run(ctx, stationID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.Debug("Fallback tier failed",
					"tier", t.name, "station_id", stationID, "error", err)
			}
			continue
		}
		if entry != nil && entry.Usable() {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("%w: station %s, past %d days", ErrNoRecentData, stationID, r.lookbackDays)
}

// cachedTier looks the key up in the store.
func (r *Resolver) cachedTier(name, key string) fallbackTier {
	return fallbackTier{
		name: name,
		run: func(ctx context.Context, stationID string) (*store.Entry, error) {
			return r.store.Get(ctx, stationID, key)
		},
	}
}

// fetchTier fetches one logical day from upstream and persists the result
// under cacheKey. Persisting is best-effort: a write-back failure is logged
// and the freshly fetched reading is still returned.
func (r *Resolver) fetchTier(name string, day time.Time, selectTime, cacheKey string) fallbackTier {
	return fallbackTier{
		name: name,
		run: func(ctx context.Context, stationID string) (*store.Entry, error) {
			payload, err := r.fetcher.Fetch(ctx, stationID, bucket.APIDateParam(day), selectTime)
			if err != nil {
				return nil, err
			}
			return r.writeBack(ctx, stationID, cacheKey, payload), nil
		},
	}
}

// lookbackTier scans the bounded window beyond yesterday, oldest to newest,
// fetching each day directly from upstream (no cache check, no write-back)
// and stopping at the first usable reading.
func (r *Resolver) lookbackTier(now time.Time) fallbackTier {
	return fallbackTier{
		name: "lookback-window",
		run: func(ctx context.Context, stationID string) (*store.Entry, error) {
			for i := r.lookbackDays - 1; i >= 2; i-- { // exclude today (0) and yesterday (1)
				day := now.AddDate(0, 0, -i)
				payload, err := r.fetcher.Fetch(ctx, stationID, bucket.APIDateParam(day), "")
				if err != nil {
					continue
				}
				entry := &store.Entry{
					StationID: stationID,
					BucketKey: bucket.DailyKey(day),
					Payload:   payload,
				}
				if entry.Usable() {
					return entry, nil
				}
			}
			return nil, store.ErrNotFound
		},
	}
}

// writeBack persists a fetched payload and returns the stored entry, falling
// back to an unpersisted entry when the write fails.
func (r *Resolver) writeBack(ctx context.Context, stationID, cacheKey string, payload []byte) *store.Entry {
	entry, err := r.store.Put(ctx, stationID, cacheKey, payload)
	if err != nil {
		slog.Warn("Failed to persist fetched reading",
			"station_id", stationID, "bucket_key", cacheKey, "error", err)
		return &store.Entry{StationID: stationID, BucketKey: cacheKey, Payload: payload}
	}
	return entry
}
