// Package resolver decides when cached station data is fresh enough and
// orchestrates the bounded fallback chain against the upstream source when it
// is not: current bucket, then yesterday, then an N-day lookback window.
package resolver

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/store"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/upstream"
)

// ErrNoRecentData is the resolver's sole terminal failure: every fallback
// tier in the lookback window was exhausted without a usable reading.
// The resolver does not retry; the collector's cadence provides that.
var ErrNoRecentData = errors.New("no recent data available")

const (
	defaultLookbackDays = 7
	defaultMemoTTL      = 5 * time.Minute
)

// Resolver serves read requests from the cache store, falling back to the
// upstream source and writing fresh readings back, best-effort.
type Resolver struct {
	store        store.Store
	fetcher      upstream.Fetcher
	lookbackDays int
	memo         *memoCache
	now          func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookbackDays bounds the fallback window (today and yesterday included).
func WithLookbackDays(days int) Option {
	return func(r *Resolver) {
		if days > 0 {
			r.lookbackDays = days
		}
	}
}

// WithMemoTTL sets the per-station memo lifetime; zero disables the memo.
func WithMemoTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.memo = newMemoCache(ttl, r.now) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
		r.memo = newMemoCache(r.memo.ttl, now)
	}
}

// New builds a Resolver over the given store and upstream fetcher.
func New(st store.Store, fetcher upstream.Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		store:        st,
		fetcher:      fetcher,
		lookbackDays: defaultLookbackDays,
		now:          time.Now,
	}
	r.memo = newMemoCache(defaultMemoTTL, r.now)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current resolves the freshest usable reading for the station at the time of
// the call. The chain: cached hourly bucket, upstream fetch for today,
// upstream fetch for yesterday (both written back), then the direct lookback
// scan. Returns ErrNoRecentData once the whole window is exhausted.
func (r *Resolver) Current(ctx context.Context, stationID string) (*store.Entry, error) {
	if memoized := r.memo.get(stationID); memoized != nil {
		return memoized, nil
	}

	now := r.now().In(bucket.Reference)
	yesterday := now.AddDate(0, 0, -1)

	tiers := []fallbackTier{
		r.cachedTier("cache-today", bucket.HourlyKey(now)),
		r.fetchTier("fetch-today", now, "", bucket.HourlyKey(now)),
		r.fetchTier("fetch-yesterday", yesterday, "", bucket.HourlyKey(yesterday)),
		r.lookbackTier(now),
	}

	entry, err := r.runTiers(ctx, stationID, tiers)
	if err != nil {
		return nil, err
	}
	r.memo.set(stationID, entry)
	return entry, nil
}

// SweepMemo evicts expired memo entries. Invoked on a timer by the process
// bootstrap rather than by a timer owned here.
func (r *Resolver) SweepMemo() int {
	return r.memo.sweepExpired()
}

// DayReading is one resolved day in a historical range.
type DayReading struct {
	Date  time.Time
	Key   string
	Entry *store.Entry
}

// DailyRange resolves the past `days` calendar days (today included), oldest
// first. Each day resolves independently through its own cache-then-fetch
// tiers; a day without a usable reading is omitted, never an error. When the
// requested day is today and the reference clock is within the first half
// hour past midnight, the upstream lookup substitutes yesterday's hour-24
// reading, still cached under today's daily key.
func (r *Resolver) DailyRange(ctx context.Context, stationID string, days int) ([]DayReading, error) {
	now := r.now().In(bucket.Reference)
	nearMidnight := bucket.NearMidnight(now)

	var out []DayReading
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		if day.After(now) {
			continue
		}

		key := bucket.DailyKey(day)
		isToday := key == bucket.DailyKey(now)

		fetchDay, selectTime := day, ""
		if isToday && nearMidnight {
			fetchDay, selectTime = day.AddDate(0, 0, -1), "24"
		}

		tiers := []fallbackTier{
			r.cachedTier("cache-day", key),
			r.fetchTier("fetch-day", fetchDay, selectTime, key),
		}

		entry, err := r.runTiers(ctx, stationID, tiers)
		if err != nil {
			continue // this day has nothing usable; neighbours still resolve
		}
		out = append(out, DayReading{Date: day, Key: key, Entry: entry})
	}
	return out, nil
}

// HourReading is one resolved hour in an hourly range.
type HourReading struct {
	At    time.Time
	Key   string
	Entry *store.Entry
}

// HourlyRange walks backward hour by hour from now over the past `hours`
// hours. Each hour gets one cache check and at most one upstream fetch with
// an explicit hour selector (hour 0 maps to "24" against the previous day);
// there is no multi-day fallback per hour, a missed hour is simply omitted.
// Results are ordered oldest first.
func (r *Resolver) HourlyRange(ctx context.Context, stationID string, hours int) ([]HourReading, error) {
	now := r.now().In(bucket.Reference)

	var out []HourReading
	for i := 0; i < hours; i++ {
		target := now.Add(-time.Duration(i) * time.Hour).Truncate(time.Hour)
		key := bucket.HourlyKey(target)

		if entry, err := r.store.Get(ctx, stationID, key); err == nil {
			out = append(out, HourReading{At: target, Key: key, Entry: entry})
			continue
		}

		date, selector := bucket.HourSelector(target)
		payload, err := r.fetcher.Fetch(ctx, stationID, date, selector)
		if err != nil {
			continue
		}
		entry := r.writeBack(ctx, stationID, key, payload)
		out = append(out, HourReading{At: target, Key: key, Entry: entry})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}
