package feed

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

const istOffset = 19800 * time.Second

var ist = time.FixedZone("IST", 19800)

func TestNormalizeTimestamp_ShiftsUTCToISTWallClock(t *testing.T) {
	got, err := NormalizeTimestamp("2024-01-01T03:45:00Z", time.UTC, istOffset)
	require.NoError(t, err)

	display := time.Unix(got, 0).UTC()
	assert.Equal(t, "2024-01-01 09:15:00", display.Format("2006-01-02 15:04:05"))
	assert.Equal(t, int64(1704080700+19800), got)
}

func TestNormalizeTimestamp_NaiveReadInSourceZone(t *testing.T) {
	// The replay source prints IST wall-clock without an offset.
	got, err := NormalizeTimestamp("2024-01-01 09:15:00", ist, istOffset)
	require.NoError(t, err)
	assert.Equal(t, "09:15:00", time.Unix(got, 0).UTC().Format("15:04:05"))
}

func TestNormalizeTimestamp_ExplicitOffsetWins(t *testing.T) {
	got, err := NormalizeTimestamp("2024-01-01 09:15:00+05:30", time.UTC, istOffset)
	require.NoError(t, err)
	assert.Equal(t, "09:15:00", time.Unix(got, 0).UTC().Format("15:04:05"))
}

func TestNormalizeTimestamp_FloorsFraction(t *testing.T) {
	got, err := NormalizeTimestamp("2024-01-01T03:45:00.999Z", time.UTC, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1704080700), got)

	// Before the epoch the floor still rounds down.
	got, err = NormalizeTimestamp("1969-12-31T23:59:59.5Z", time.UTC, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got)
}

func TestNormalizeTimestamp_Rejects(t *testing.T) {
	_, err := NormalizeTimestamp("not a date", time.UTC, 0)
	assert.ErrorIs(t, err, ErrBadTimestamp)
}

func TestDecoder_Candle(t *testing.T) {
	d := Decoder{Source: time.UTC, Offset: istOffset}
	ev, err := d.Decode([]byte(`{"type":"CANDLE","data":{"timestamp":"2024-01-01T03:45:00Z","open":1,"high":3,"low":0.5,"close":2}}`))
	require.NoError(t, err)

	assert.Equal(t, model.KindCandle, ev.Kind)
	assert.Equal(t, int64(1704080700+19800), ev.Candle.Time)
	assert.Equal(t, 2.0, ev.Candle.Close)
	assert.True(t, ev.Candle.Finite())
}

func TestDecoder_CandleMissingFieldsBecomeNaN(t *testing.T) {
	d := Decoder{Source: time.UTC}
	ev, err := d.Decode([]byte(`{"type":"CANDLE","data":{"timestamp":"2024-01-01T03:45:00Z","close":2}}`))
	require.NoError(t, err)

	assert.True(t, math.IsNaN(ev.Candle.Open))
	assert.Equal(t, 2.0, ev.Candle.Close)
	assert.False(t, ev.Candle.Finite())
}

func TestDecoder_Tick(t *testing.T) {
	d := Decoder{}
	ev, err := d.Decode([]byte(`{"type":"TICK","data":{"price":21500.5,"timestamp":"2024-01-01T09:15:00"}}`))
	require.NoError(t, err)
	assert.Equal(t, model.KindTick, ev.Kind)
	assert.Equal(t, 21500.5, ev.Price)

	_, err = d.Decode([]byte(`{"type":"TICK","data":{}}`))
	assert.ErrorIs(t, err, ErrMissingPrice)
}

func TestDecoder_Errors(t *testing.T) {
	d := Decoder{}

	_, err := d.Decode([]byte(`{not json`))
	assert.Error(t, err)

	_, err = d.Decode([]byte(`{"type":"NEWS","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = d.Decode([]byte(`{"type":"CANDLE","data":{"timestamp":"??","close":1}}`))
	assert.ErrorIs(t, err, ErrBadTimestamp)
}
