package simfeed

import (
	"context"
	"errors"
	"math"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/feed"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

var ist = time.FixedZone("IST", 19800)

const sampleCSV = `Date,Open,High,Low,Close
2024-01-01 09:15:00,21700,21750,21690,21740
2024-01-01 09:16:00,21740,21760,21720,21730
`

func TestParseCSV(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader(sampleCSV), ist)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 3, 45, 0, 0, time.UTC).Unix(), bars[0].Time.Unix())
	assert.Equal(t, 21730.0, bars[1].Close)
}

func TestParseCSV_Errors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("open,high,low,close\n1,2,3,4\n"), ist)
	assert.Error(t, err)

	_, err = ParseCSV(strings.NewReader("datetime,open,high,low,close\nyesterday,1,2,3,4\n"), ist)
	assert.Error(t, err)
}

func TestStore_ImportAndRead(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "bars.db"), nil)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	n, err := s.ImportCSV(ctx, "NIFTY 50", strings.NewReader(sampleCSV), ist)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// re-import replaces rows
	_, err = s.ImportCSV(ctx, "NIFTY 50", strings.NewReader(sampleCSV), ist)
	require.NoError(t, err)

	bars, err := s.Bars(ctx, "NIFTY 50")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Time.Before(bars[1].Time))

	other, err := s.Bars(ctx, "BANKNIFTY")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestReplayer_Pace(t *testing.T) {
	r := NewReplayer(nil, "X", nil, nil)
	assert.Equal(t, 100*time.Millisecond, r.Pace(1))
	assert.Equal(t, 10*time.Millisecond, r.Pace(10))
	assert.Equal(t, time.Second, r.Pace(0))
	assert.Equal(t, time.Second, r.Pace(-3))
}

var errEnough = errors.New("enough")

func collect(t *testing.T, r *Replayer, n int) [][]byte {
	t.Helper()
	r.Interval = time.Millisecond
	var out [][]byte
	err := r.Run(context.Background(), 1, func(b []byte) error {
		out = append(out, b)
		if len(out) == n {
			return errEnough
		}
		return nil
	})
	require.ErrorIs(t, err, errEnough)
	return out
}

func TestReplayer_CandlesLoopInSourceZone(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader(sampleCSV), ist)
	require.NoError(t, err)
	msgs := collect(t, NewReplayer(bars, "NIFTY 50", ist, nil), 3)

	dec := feed.Decoder{Source: ist}
	var times []int64
	for _, m := range msgs {
		ev, err := dec.Decode(m)
		require.NoError(t, err)
		require.Equal(t, model.KindCandle, ev.Kind)
		times = append(times, ev.Candle.Time)
	}
	assert.Equal(t, bars[0].Time.Unix(), times[0])
	assert.Equal(t, bars[1].Time.Unix(), times[1])
	assert.Equal(t, times[0], times[2])
	assert.Contains(t, string(msgs[0]), `"timestamp":"2024-01-01 09:15:00"`)
}

func TestReplayer_TicksWithoutBars(t *testing.T) {
	msgs := collect(t, NewReplayer(nil, "NIFTY 50", ist, nil), 5)
	dec := feed.Decoder{Source: ist}
	for _, m := range msgs {
		ev, err := dec.Decode(m)
		require.NoError(t, err)
		require.Equal(t, model.KindTick, ev.Kind)
		assert.InDelta(t, 21500, ev.Price, 5)
	}
}

func TestTickSynthesizer_BridgesOpenToCloseWithinRange(t *testing.T) {
	b := Bar{Open: 21700, High: 21750, Low: 21690, Close: 21740}
	s := NewTickSynthesizer(7)
	for run := 0; run < 20; run++ {
		ticks := s.Ticks(b, 60)
		require.Len(t, ticks, 60)
		assert.Equal(t, 21700.0, ticks[0])
		assert.Equal(t, 21740.0, ticks[59])
		for _, p := range ticks {
			assert.GreaterOrEqual(t, p, b.Low)
			assert.LessOrEqual(t, p, b.High)
			assert.Equal(t, p, math.Round(p*100)/100)
		}
	}
	assert.Equal(t, []float64{21740}, s.Ticks(b, 1))
}

func TestTickSynthesizer_SeedIsReproducible(t *testing.T) {
	b := Bar{Open: 10, High: 12, Low: 9, Close: 11}
	assert.Equal(t, NewTickSynthesizer(3).Ticks(b, 30), NewTickSynthesizer(3).Ticks(b, 30))
}

func TestReplayer_TicksPrecedeEachCandle(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader(sampleCSV), ist)
	require.NoError(t, err)
	r := NewReplayer(bars, "NIFTY 50", ist, nil)
	r.TicksPerBar = 4
	msgs := collect(t, r, 10)

	dec := feed.Decoder{Source: ist}
	var kinds []model.EventKind
	var prices []float64
	for _, m := range msgs {
		ev, err := dec.Decode(m)
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
		prices = append(prices, ev.Price)
	}
	tick, candle := model.KindTick, model.KindCandle
	assert.Equal(t, []model.EventKind{tick, tick, tick, tick, candle, tick, tick, tick, tick, candle}, kinds)
	assert.Equal(t, bars[0].Open, prices[0])
	assert.Equal(t, bars[0].Close, prices[3])
	assert.Equal(t, bars[1].Open, prices[5])
	assert.Equal(t, bars[1].Close, prices[8])
	assert.Contains(t, string(msgs[0]), `"timestamp":"2024-01-01 09:15:00"`)
}

func TestHandler_StreamsAfterStart(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader(sampleCSV), ist)
	require.NoError(t, err)
	h := NewHandler(func(context.Context) ([]Bar, error) { return bars, nil }, "NIFTY 50", ist, nil)
	h.Interval = time.Millisecond
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(model.Command{Command: model.CommandStart, Speed: 1}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env model.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, model.TypeCandle, env.Type)
}
