package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bapu077/quantstream-dashboard/internal/metrics"
	"github.com/bapu077/quantstream-dashboard/internal/notify"
)

func newTestServer(t *testing.T) (*httptest.Server, *Engine) {
	t.Helper()
	cfg := testConfig(2)
	rec := notify.NewRecorder()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := New(cfg, rows(10, 11, 12, 13, 14), rec, m, nil, zap.NewNop())
	t.Cleanup(e.Close)

	stream := NewStream(m, zap.NewNop())
	e.SetUpdateHandler(stream.Broadcast)
	e.Start(context.Background())

	api := NewAPIServer(e, stream, cfg, reg, zap.NewNop())
	ts := httptest.NewServer(api.server.Handler)
	t.Cleanup(ts.Close)
	return ts, e
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestMarketEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/market")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap MarketSnapshot
	decodeBody(t, resp, &snap)
	assert.Len(t, snap.Points, 2)
	assert.True(t, snap.ShowIndicators)
}

func TestModeEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/mode", `{"mode":"historical"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out replayResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, ModeHistorical, out.Mode)
	assert.True(t, out.Replay.IsPlaying)
	assert.Equal(t, 2, out.Replay.CurrentIndex)

	resp = postJSON(t, ts.URL+"/api/mode", `{"mode":"warp"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAlertEndpointValidation(t *testing.T) {
	ts, e := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/alerts", `{"type":"above","threshold":155}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	for _, body := range []string{
		`{"type":"sideways","threshold":155}`,
		`{"type":"above"}`,
		`{"type":"above","threshold":"155"}`,
		`not json`,
	} {
		resp := postJSON(t, ts.URL+"/api/alerts", body)
		assert.Equalf(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
		resp.Body.Close()
	}

	assert.Len(t, e.Alerts(), 1, "rejected requests register nothing")
}

func TestSpeedEndpointValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/replay/speed", `{"speed":5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/replay/speed", `{"speed":3}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out errorResponse
	decodeBody(t, resp, &out)
	assert.Contains(t, out.Error, "speed must be one of")
}

func TestTradeEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	// Live seed guarantees a quoted price, so a small buy fills.
	resp := postJSON(t, ts.URL+"/api/trade/buy", `{"quantity":1}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Oversell is a rejection, not a validation failure.
	resp = postJSON(t, ts.URL+"/api/trade/sell", `{"quantity":500}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/trade/buy", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestIndicatorsEndpoint(t *testing.T) {
	ts, e := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/indicators", `{"visible":false}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	assert.False(t, e.Market().ShowIndicators)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func (s *Stream) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func TestStreamDeliversTicks(t *testing.T) {
	cfg := testConfig(2)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := New(cfg, nil, notify.NewRecorder(), m, nil, zap.NewNop())
	t.Cleanup(e.Close)

	stream := NewStream(m, zap.NewNop())
	e.SetUpdateHandler(stream.Broadcast)
	e.Start(context.Background())

	api := NewAPIServer(e, stream, cfg, reg, zap.NewNop())
	ts := httptest.NewServer(api.server.Handler)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration completes on the server after the handshake returns.
	require.Eventually(t, func() bool { return stream.clientCount() == 1 },
		time.Second, 5*time.Millisecond)

	e.step()

	var update Update
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, ModeLive, update.Mode)
	assert.NotZero(t, update.Point.Price)
}
