// Package chart projects market updates onto a candlestick widget.
//
// The Adapter owns exactly one widget and one series. It tracks its own
// latest plotted time and applies the same rewind rule as the market state,
// so a looped stream clears the chart once and starts over. Errors and
// panics from the widget are logged and swallowed; plotted history is never
// discarded because of a failed update.
package chart

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/market"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

// ErrNotInitialized is reported when the adapter has no live widget.
var ErrNotInitialized = errors.New("chart: not initialized")

// Adapter owns the chart widget and its price series.
type Adapter struct {
	factory Factory
	log     *slog.Logger
	theme   Theme
	size    Size

	widget Widget
	series Series

	last    int64
	hasLast bool

	// Optional hooks.
	OnReset func(t int64)
	OnError func(err error)
}

// NewAdapter returns an adapter; call Init to create the widget.
func NewAdapter(factory Factory, theme Theme, size Size, log *slog.Logger) *Adapter {
	return &Adapter{
		factory: factory,
		log:     logger.Component(log, "chart"),
		theme:   theme,
		size:    size,
	}
}

// Init creates the widget and series. A live widget is released first.
func (a *Adapter) Init() error {
	a.Close()

	w, err := a.factory(Options{Size: a.size, Palette: a.theme.Palette()})
	if err != nil {
		return fmt.Errorf("chart: create widget: %w", err)
	}
	s, err := w.AddSeries(DefaultSeriesStyle)
	if err != nil {
		w.Remove()
		return fmt.Errorf("chart: add series: %w", err)
	}
	a.widget, a.series = w, s
	a.last, a.hasLast = 0, false
	a.log.Info("chart ready", slog.Int("width", a.size.Width), slog.Int("height", a.size.Height),
		slog.String("theme", string(a.theme)))
	return nil
}

// Close releases the widget. Safe to call repeatedly.
func (a *Adapter) Close() {
	if a.widget == nil {
		return
	}
	w := a.widget
	a.widget, a.series = nil, nil
	a.guard("remove", func() error {
		w.Remove()
		return nil
	})
}

// Apply plots one market update. Ticks are ignored: the chart only shows
// candles. On rewind the series is cleared and the candle becomes its sole
// point; otherwise the latest point is upserted.
func (a *Adapter) Apply(u market.Update) {
	if u.Kind != model.KindCandle {
		return
	}
	if a.series == nil {
		a.report("apply", ErrNotInitialized)
		return
	}

	c := u.Candle
	rewind := market.IsRewind(c.Time, a.last, a.hasLast)
	if rewind != u.Reset {
		a.log.Warn("rewind disagreement between chart and market state",
			slog.Int64("time", c.Time), slog.Int64("chart_last", a.last), slog.Bool("market_reset", u.Reset))
	}

	if rewind || u.Reset {
		a.log.Info("timeline reset", slog.Int64("time", c.Time), slog.Int64("previous", a.last))
		if !a.guard("clear", func() error { return a.series.SetData(nil) }) {
			return
		}
		a.hasLast = false
		if a.OnReset != nil {
			a.OnReset(c.Time)
		}
	}

	p := Point{Time: c.Time, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
	if a.guard("update", func() error { return a.series.Update(p) }) {
		a.last, a.hasLast = c.Time, true
	}
}

// Clear removes every plotted point and forgets the last plotted time.
func (a *Adapter) Clear() {
	if a.series == nil {
		return
	}
	if a.guard("clear", func() error { return a.series.SetData(nil) }) {
		a.last, a.hasLast = 0, false
	}
}

// SetTheme re-applies cosmetic colors. Plotted data and the series are kept.
func (a *Adapter) SetTheme(t Theme) {
	a.theme = t
	if a.widget == nil {
		return
	}
	a.guard("theme", func() error { return a.widget.ApplyOptions(t.Palette()) })
}

// Resize applies the container's new dimensions.
func (a *Adapter) Resize(size Size) {
	if size.Width <= 0 || size.Height <= 0 {
		return
	}
	a.size = size
	if a.widget == nil {
		return
	}
	a.guard("resize", func() error { return a.widget.Resize(size) })
}

// Theme returns the current theme.
func (a *Adapter) Theme() Theme { return a.theme }

// Size returns the last applied container size.
func (a *Adapter) Size() Size { return a.size }

// LastTime returns the time of the latest plotted point.
func (a *Adapter) LastTime() (int64, bool) { return a.last, a.hasLast }

// guard runs fn, converting a panic into an error. It reports and returns
// false on failure.
func (a *Adapter) guard(op string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.report(op, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()
	if err := fn(); err != nil {
		a.report(op, err)
		return false
	}
	return true
}

func (a *Adapter) report(op string, err error) {
	a.log.Error("chart error", slog.String("op", op), slog.Any("err", err))
	if a.OnError != nil {
		a.OnError(err)
	}
}
