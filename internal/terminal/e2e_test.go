package terminal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/chart"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/chart/echarts"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/feed"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/ledger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/market"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

const (
	candleAt1 = `{"type":"CANDLE","data":{"timestamp":"1970-01-01T00:00:01Z","open":100,"high":100,"low":100,"close":100}}`
	candleAt2 = `{"type":"CANDLE","data":{"timestamp":"1970-01-01T00:00:02Z","open":100,"high":120,"low":100,"close":120}}`
)

// stepSim writes the first message after START and each following one when
// the test signals on next.
func stepSim(t *testing.T, next <-chan struct{}, msgs ...string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var cmd model.Command
		if err := conn.ReadJSON(&cmd); err != nil || cmd.Command != model.CommandStart {
			return
		}
		for i, msg := range msgs {
			if i > 0 {
				select {
				case <-next:
				case <-r.Context().Done():
					return
				}
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTerminal_EndToEndRoundTrip(t *testing.T) {
	next := make(chan struct{})
	srv := stepSim(t, next, candleAt1, candleAt2)

	ing, err := feed.New(feed.Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)
	require.NoError(t, err)
	state := market.New(0)
	l := ledger.New(state, ledger.Config{Symbol: "NIFTY 50", InitialBalance: 100000}, nil)
	host := echarts.NewHost("NIFTY 50")
	adapter := chart.NewAdapter(host.Factory(), chart.ThemeDark, chart.Size{Width: 800, Height: 400}, nil)
	term, err := New(ing, state, l, adapter, 1, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan error, 1)
	go func() { exited <- term.Run(ctx) }()
	defer func() {
		cancel()
		<-exited
	}()

	priceIs := func(want float64) func() bool {
		return func() bool {
			s, err := term.Snapshot(ctx)
			return err == nil && s.CurrentPrice == want
		}
	}

	require.NoError(t, term.SetPlaying(ctx, true))
	require.Eventually(t, priceIs(100), 2*time.Second, 10*time.Millisecond)

	tr, ok, err := term.PlaceOrder(ctx, model.SideBuy, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, int64(1), tr.Timestamp.Unix())

	next <- struct{}{}
	require.Eventually(t, priceIs(120), 2*time.Second, 10*time.Millisecond)

	closed, ok, err := term.ClosePosition(ctx, tr.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusClosed, closed.Status)
	require.NotNil(t, closed.PnL)
	assert.Equal(t, 100.0, *closed.PnL)

	s, err := term.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100100.0, s.Balance)
	assert.Len(t, host.Current().Points(), 2)
}
