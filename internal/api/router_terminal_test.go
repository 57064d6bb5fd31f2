package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/chart"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/chart/echarts"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/feed"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/ledger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/market"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/terminal"
)

// chanStream is a terminal.Stream whose events are pushed by the test.
type chanStream struct {
	events  chan model.Event
	session uint64
}

func (s *chanStream) Events() <-chan model.Event { return s.events }

func (s *chanStream) Start(context.Context, float64) uint64 {
	s.session++
	return s.session
}

func (s *chanStream) Stop() {}

func TestRouter_PartialCandleStillEncodes(t *testing.T) {
	stream := &chanStream{events: make(chan model.Event, 8)}
	state := market.New(21500)
	l := ledger.New(state, ledger.Config{Symbol: "NIFTY 50", InitialBalance: 100000}, nil)
	host := echarts.NewHost("NIFTY 50")
	adapter := chart.NewAdapter(host.Factory(), chart.ThemeDark, chart.Size{Width: 800, Height: 400}, nil)
	term, err := terminal.New(stream, state, l, adapter, 1, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan error, 1)
	go func() { exited <- term.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-exited
	})

	mux := NewRouter(term, nil, nil)
	require.Equal(t, http.StatusOK, do(t, mux, http.MethodPost, "/api/v1/play", "").Code)

	ev, err := feed.Decoder{Source: time.UTC}.Decode(
		[]byte(`{"type":"CANDLE","data":{"timestamp":"2024-01-01T03:45:00Z","open":1,"high":2,"low":0.5}}`))
	require.NoError(t, err)
	ev.Session = stream.session
	stream.events <- ev

	rec := do(t, mux, http.MethodGet, "/api/v1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.Bytes())

	var body struct {
		CurrentPrice  *float64 `json:"current_price"`
		CurrentCandle *struct {
			Open  *float64 `json:"open"`
			Close *float64 `json:"close"`
		} `json:"current_candle"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body.CurrentPrice)
	require.NotNil(t, body.CurrentCandle)
	require.NotNil(t, body.CurrentCandle.Open)
	assert.Equal(t, 1.0, *body.CurrentCandle.Open)
	assert.Nil(t, body.CurrentCandle.Close)

	// Command responses carry the same snapshot.
	rec = do(t, mux, http.MethodPost, "/api/v1/pause", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"current_price":null`)
}

func TestWriteJSON_EncodeFailureIs500(t *testing.T) {
	rec := do(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, slog.New(slog.NewTextHandler(io.Discard, nil)), http.StatusOK, map[string]any{"bad": make(chan int)})
	}), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
