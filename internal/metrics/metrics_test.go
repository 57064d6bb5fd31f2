package metrics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.CandlesTotal.Inc()
	m.CandleRevises.Inc()
	m.TradesOpened.WithLabelValues("BUY").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandlesTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "terminal_candle_revisions_total"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesOpened.WithLabelValues("BUY")))

	// A second registry is independent.
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}

func healthz(t *testing.T, h *HealthStatus) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealth_StoppedIsHealthy(t *testing.T) {
	code, body := healthz(t, NewHealthStatus())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestHealth_PlayingWithoutFeedIsDegraded(t *testing.T) {
	h := NewHealthStatus()
	h.SetPlaying(true)
	code, body := healthz(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])

	h.SetFeedConnected(true)
	code, _ = healthz(t, h)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealth_EnabledDependencyDown(t *testing.T) {
	h := NewHealthStatus()
	h.SetJournal(true, false)
	code, _ := healthz(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	h.SetJournal(false, false)
	code, _ = healthz(t, h)
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.TicksTotal.Add(3)

	srv := NewServer(":0", NewHealthStatus(), reg, slog.Default(), map[string]http.Handler{
		"/ping": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("pong")) }),
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "terminal_ticks_total 3"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "pong", rec.Body.String())
}
