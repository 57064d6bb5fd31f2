package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

var (
	// ErrBadTimestamp is returned when a CANDLE timestamp cannot be parsed.
	ErrBadTimestamp = errors.New("feed: unparseable candle timestamp")
	// ErrUnknownType is returned for message types other than CANDLE and TICK.
	ErrUnknownType = errors.New("feed: unknown message type")
	// ErrMissingPrice is returned for a TICK without a price.
	ErrMissingPrice = errors.New("feed: tick without price")
)

// timestampLayouts are tried in order. Layouts without a zone are read in
// the configured source zone.
var timestampLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02 15:04:05.999999999Z07:00", true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02", false},
}

// NormalizeTimestamp parses a feed timestamp and returns its display time:
// floor(epoch seconds) + offset. Strings without a zone are read in src.
func NormalizeTimestamp(s string, src *time.Location, offset time.Duration) (int64, error) {
	s = strings.TrimSpace(s)
	if src == nil {
		src = time.UTC
	}
	for _, l := range timestampLayouts {
		var (
			ts  time.Time
			err error
		)
		if l.zoned {
			ts, err = time.Parse(l.layout, s)
		} else {
			ts, err = time.ParseInLocation(l.layout, s, src)
		}
		if err == nil {
			// Unix() floors: the nanosecond remainder is always non-negative.
			return ts.Unix() + int64(offset/time.Second), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// Decoder turns raw socket messages into normalized events.
type Decoder struct {
	Source *time.Location
	Offset time.Duration
}

// Decode parses one raw message. Missing OHLC fields are carried as NaN
// rather than rejected.
func (d Decoder) Decode(raw []byte) (model.Event, error) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.Event{}, fmt.Errorf("feed: decode envelope: %w", err)
	}

	switch env.Type {
	case model.TypeCandle:
		var p model.CandlePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return model.Event{}, fmt.Errorf("feed: decode candle: %w", err)
		}
		t, err := NormalizeTimestamp(p.Timestamp, d.Source, d.Offset)
		if err != nil {
			return model.Event{}, err
		}
		return model.Event{
			Kind: model.KindCandle,
			Candle: model.Candle{
				Time:  t,
				Open:  orNaN(p.Open),
				High:  orNaN(p.High),
				Low:   orNaN(p.Low),
				Close: orNaN(p.Close),
			},
		}, nil

	case model.TypeTick:
		var p model.TickPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return model.Event{}, fmt.Errorf("feed: decode tick: %w", err)
		}
		if p.Price == nil {
			return model.Event{}, ErrMissingPrice
		}
		return model.Event{Kind: model.KindTick, Price: *p.Price}, nil

	default:
		return model.Event{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
