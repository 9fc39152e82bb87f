package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/store"
)

type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]json.RawMessage
	failing   map[string]bool
	calls     []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		responses: make(map[string]json.RawMessage),
		failing:   make(map[string]bool),
	}
}

func (f *stubFetcher) Fetch(ctx context.Context, stationID, date, selectTime string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, stationID)
	if f.failing[stationID] {
		return nil, fmt.Errorf("upstream down for %s", stationID)
	}
	payload, ok := f.responses[stationID]
	if !ok {
		return nil, errors.New("unknown station")
	}
	return payload, nil
}

var cycleTime = time.Date(2024, 3, 10, 15, 0, 0, 0, bucket.Reference)

func TestRunCyclePersistsAllStations(t *testing.T) {
	st := store.NewMemoryStore()
	fetcher := newStubFetcher()
	fetcher.responses["P.1"] = json.RawMessage(`{"level1": "309.25"}`)
	fetcher.responses["P.67"] = json.RawMessage(`{"level1": "301.10"}`)

	c := New(st, fetcher, []string{"P.1", "P.67"}, WithClock(func() time.Time { return cycleTime }))
	summary := c.RunCycle(context.Background())

	require.Equal(t, 2, summary.Succeeded)
	require.Zero(t, summary.Failed)
	require.Zero(t, summary.Unusable)
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", summary.CycleID.String())

	key := bucket.HourlyKey(cycleTime)
	for _, id := range []string{"P.1", "P.67"} {
		entry, err := st.Get(context.Background(), id, key)
		require.NoError(t, err)
		require.True(t, entry.Usable())
	}
}

func TestRunCycleIsolatesStationFailures(t *testing.T) {
	st := store.NewMemoryStore()
	fetcher := newStubFetcher()
	fetcher.responses["P.1"] = json.RawMessage(`{"level1": "309.25"}`)
	fetcher.failing["P.67"] = true
	fetcher.responses["P.93"] = json.RawMessage(`{"level1": "295.40"}`)

	c := New(st, fetcher, []string{"P.1", "P.67", "P.93"}, WithClock(func() time.Time { return cycleTime }))
	summary := c.RunCycle(context.Background())

	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 3)

	// The failing station did not stop its siblings from being persisted.
	key := bucket.HourlyKey(cycleTime)
	_, err := st.Get(context.Background(), "P.93", key)
	require.NoError(t, err)
	_, err = st.Get(context.Background(), "P.67", key)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunCyclePersistsUnusableReadings(t *testing.T) {
	st := store.NewMemoryStore()
	fetcher := newStubFetcher()
	fetcher.responses["P.1"] = json.RawMessage(`{"level1": ""}`)

	c := New(st, fetcher, []string{"P.1"}, WithClock(func() time.Time { return cycleTime }))
	summary := c.RunCycle(context.Background())

	require.Equal(t, 1, summary.Unusable)
	require.Zero(t, summary.Succeeded)

	// The empty reading is still cached; readers decide usability later.
	entry, err := st.Get(context.Background(), "P.1", bucket.HourlyKey(cycleTime))
	require.NoError(t, err)
	require.False(t, entry.Usable())
}

func TestRunCycleAtMidnightWritesUnderPreviousDayHour24(t *testing.T) {
	midnight := time.Date(2024, 3, 10, 0, 5, 0, 0, bucket.Reference)

	st := store.NewMemoryStore()
	fetcher := newStubFetcher()
	fetcher.responses["P.1"] = json.RawMessage(`{"level1": "308.00"}`)

	c := New(st, fetcher, []string{"P.1"}, WithClock(func() time.Time { return midnight }))
	summary := c.RunCycle(context.Background())
	require.Equal(t, 1, summary.Succeeded)

	_, err := st.Get(context.Background(), "P.1", "2024030924")
	require.NoError(t, err)
}
