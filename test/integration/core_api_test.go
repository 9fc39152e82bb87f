//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/api"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/collector"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/resolver"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/server"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/store"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/upstream"
)

type integrationHarness struct {
	baseURL    string
	client     *http.Client
	store      *store.FileStore
	collector  *collector.Collector
	upstream   *scriptedUpstream
	cancel     context.CancelFunc
	serverDone chan error
}

// scriptedUpstream plays the hydrology API: responses are keyed by the
// (date, select_time) query pair.
type scriptedUpstream struct {
	mu        sync.Mutex
	srv       *httptest.Server
	responses map[string]string
}

func newScriptedUpstream() *scriptedUpstream {
	u := &scriptedUpstream{responses: make(map[string]string)}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		body, ok := u.responses[r.URL.Query().Get("date")+"|"+r.URL.Query().Get("select_time")]
		u.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	return u
}

func (u *scriptedUpstream) respond(date, selectTime, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.responses[date+"|"+selectTime] = body
}

func (h *integrationHarness) close(t *testing.T) {
	t.Helper()

	h.cancel()
	select {
	case <-h.serverDone:
	case <-time.After(5 * time.Second):
		t.Log("server shutdown timed out")
	}
	h.upstream.srv.Close()
}

func startHarness(t *testing.T) *integrationHarness {
	t.Helper()

	fileStore, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	fakeUpstream := newScriptedUpstream()
	client := upstream.NewClient(fakeUpstream.srv.URL, 2*time.Second)

	res := resolver.New(fileStore, client, resolver.WithMemoTTL(0))
	col := collector.New(fileStore, client, []string{"P.1", "P.67"})

	port := freePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpServer := server.New(addr, fileStore, "release")
	api.NewService(fileStore, res, "P.1").Register(httpServer.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() { serverDone <- httpServer.Run(ctx) }()

	baseURL := "http://" + addr
	waitForHealthy(t, baseURL)

	return &integrationHarness{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		store:      fileStore,
		collector:  col,
		upstream:   fakeUpstream,
		cancel:     cancel,
		serverDone: serverDone,
	}
}

func TestCoreAPI_CollectAndServeCurrent(t *testing.T) {
	h := startHarness(t)
	defer h.close(t)

	now := time.Now().In(bucket.Reference)
	h.upstream.respond(bucket.APIDateParam(now), "", `{"level1": "309.25", "price_pole": "305.00"}`)

	summary := h.collector.RunCycle(context.Background())
	require.Equal(t, 2, summary.Succeeded)

	resp, err := h.client.Get(h.baseURL + "/v1/current")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var payload struct {
		StationID     string `json:"station_id"`
		BucketKey     string `json:"bucket_key"`
		RelativeLevel string `json:"relative_level"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Equal(t, "P.1", payload.StationID)
	require.Equal(t, bucket.HourlyKey(now), payload.BucketKey)
	require.Equal(t, "4.25", payload.RelativeLevel)
}

func TestCoreAPI_CurrentFallsBackWhenTodayMissing(t *testing.T) {
	h := startHarness(t)
	defer h.close(t)

	yesterday := time.Now().In(bucket.Reference).AddDate(0, 0, -1)
	h.upstream.respond(bucket.APIDateParam(yesterday), "", `{"level1": "308.00"}`)

	resp, err := h.client.Get(h.baseURL + "/v1/current")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var payload struct {
		BucketKey string `json:"bucket_key"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Equal(t, bucket.HourlyKey(yesterday), payload.BucketKey)
}

func TestCoreAPI_StationDataRoundTrip(t *testing.T) {
	h := startHarness(t)
	defer h.close(t)

	status, body := postJSON(t, h.client, h.baseURL+"/station-data/2024031015",
		map[string]interface{}{"level1": "309.25", "dischg": ""})
	require.Equal(t, http.StatusOK, status, string(body))

	resp, err := h.client.Get(h.baseURL + "/station-data/2024031015")
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(respBody, &entry))
	require.Equal(t, "309.25", entry["level1"])
	require.Equal(t, "0", entry["dischg"])
	require.Contains(t, entry, "metadata")

	req, err := http.NewRequest(http.MethodDelete, h.baseURL+"/station-data/2024031015", nil)
	require.NoError(t, err)
	delResp, err := h.client.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	resp2, err := h.client.Get(h.baseURL + "/station-data/2024031015")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitForHealthy(t *testing.T, baseURL string) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("server did not become healthy at %s", baseURL)
}

func postJSON(t *testing.T, client *http.Client, endpoint string, payload interface{}) (int, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, respBody
}
