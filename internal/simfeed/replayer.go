package simfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

const (
	// BaseInterval is the gap between messages at speed 1.
	BaseInterval = 100 * time.Millisecond
	minSpeed     = 0.1

	fallbackPrice  = 21500.0
	fallbackSpread = 10.0

	wireTimeLayout = "2006-01-02 15:04:05"
)

// Replayer streams bars as CANDLE messages, looping back to the first bar
// after the last. With no bars it streams TICKs around a fixed price.
//
// When TicksPerBar is positive each CANDLE is preceded by that many TICKs
// walking from the bar's open to its close. Every message is paced.
type Replayer struct {
	Bars        []Bar
	Symbol      string
	Zone        *time.Location // zone of the naive wire timestamps
	Interval    time.Duration  // gap at speed 1, BaseInterval if zero
	TicksPerBar int

	rnd   *rand.Rand
	synth *TickSynthesizer
	log   *slog.Logger
}

// NewReplayer creates a replayer over bars.
func NewReplayer(bars []Bar, symbol string, zone *time.Location, log *slog.Logger) *Replayer {
	if zone == nil {
		zone = time.UTC
	}
	seed := time.Now().UnixNano()
	return &Replayer{
		Bars:   bars,
		Symbol: symbol,
		Zone:   zone,
		rnd:    rand.New(rand.NewSource(seed)),
		synth:  NewTickSynthesizer(seed),
		log:    logger.Component(log, "replay"),
	}
}

// Pace returns the gap between messages for speed.
func (r *Replayer) Pace(speed float64) time.Duration {
	base := r.Interval
	if base <= 0 {
		base = BaseInterval
	}
	if !(speed >= minSpeed) {
		speed = minSpeed
	}
	return time.Duration(float64(base) / speed)
}

// Run sends messages until ctx is cancelled or send fails.
func (r *Replayer) Run(ctx context.Context, speed float64, send func([]byte) error) error {
	if len(r.Bars) == 0 {
		r.log.Warn("no bars, streaming random ticks")
	} else {
		r.log.Info("streaming bars", slog.Int("bars", len(r.Bars)), slog.Float64("speed", speed))
	}

	ticker := time.NewTicker(r.Pace(speed))
	defer ticker.Stop()

	for i := 0; ; i++ {
		var msgs [][]byte
		if len(r.Bars) == 0 {
			msgs = [][]byte{r.tick()}
		} else {
			idx := i % len(r.Bars)
			if idx == 0 && i > 0 {
				r.log.Info("end of data, looping")
			}
			msgs = r.bar(r.Bars[idx])
		}
		for _, msg := range msgs {
			if err := send(msg); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

// bar returns the messages for one bar: its synthesized ticks, if any,
// then the candle.
func (r *Replayer) bar(b Bar) [][]byte {
	if r.TicksPerBar <= 0 {
		return [][]byte{r.candle(b)}
	}
	ts := b.Time.In(r.Zone).Format(wireTimeLayout)
	out := make([][]byte, 0, r.TicksPerBar+1)
	for _, p := range r.synth.Ticks(b, r.TicksPerBar) {
		out = append(out, tickMessage(p, ts))
	}
	return append(out, r.candle(b))
}

func (r *Replayer) candle(b Bar) []byte {
	return envelope(model.TypeCandle, model.CandlePayload{
		Timestamp: b.Time.In(r.Zone).Format(wireTimeLayout),
		Open:      &b.Open,
		High:      &b.High,
		Low:       &b.Low,
		Close:     &b.Close,
		Symbol:    r.Symbol,
	})
}

func (r *Replayer) tick() []byte {
	price := fallbackPrice + (r.rnd.Float64()-0.5)*fallbackSpread
	return tickMessage(price, time.Now().Format(time.RFC3339Nano))
}

func tickMessage(price float64, ts string) []byte {
	return envelope(model.TypeTick, model.TickPayload{Price: &price, Timestamp: ts})
}

func envelope(typ string, data any) []byte {
	raw, _ := json.Marshal(data)
	b, _ := json.Marshal(model.Envelope{Type: typ, Data: raw})
	return b
}
