// Package terminal wires the stream, market state, ledger and chart into one
// explicitly constructed object driven by a single event loop.
//
// Every state transition (inbound events, resize notifications and user
// commands) runs on the goroutine executing Run, so the components it owns
// need no locking. Commands block until the loop has applied them.
package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/chart"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/ledger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/market"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

var (
	// ErrStopped is returned for commands sent after Run has exited.
	ErrStopped = errors.New("terminal: stopped")
	// ErrInvalidSpeed is returned for a speed that is not a positive number.
	ErrInvalidSpeed = errors.New("terminal: speed must be > 0")
)

// Stream is the event source the terminal drives.
type Stream interface {
	Events() <-chan model.Event
	Start(ctx context.Context, speed float64) uint64
	Stop()
}

// Snapshot is a consistent copy of the terminal state.
type Snapshot struct {
	IsPlaying     bool           `json:"is_playing"`
	Speed         float64        `json:"speed"`
	Balance       float64        `json:"balance"`
	CurrentPrice  float64        `json:"current_price"`
	CurrentCandle *model.Candle  `json:"current_candle"`
	Trades        []model.Trade  `json:"trades"`
	Theme         chart.Theme    `json:"theme"`
	Summary       ledger.Summary `json:"summary"`
}

// MarshalJSON renders a non-finite current price as null.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return json.Marshal(struct {
		plain
		CurrentPrice *float64 `json:"current_price"`
	}{plain(s), model.FiniteOrNil(s.CurrentPrice)})
}

// Terminal is the simulated trading terminal.
type Terminal struct {
	stream  Stream
	state   *market.State
	ledger  *ledger.Ledger
	chart   *chart.Adapter
	log     *slog.Logger
	speed   float64
	resizes <-chan chart.Size

	cmds   chan func()
	done   chan struct{}
	runCtx context.Context

	// Optional hooks, called on the loop goroutine. They must not block.
	OnUpdate   func(u market.Update)
	OnDiscard  func(ev model.Event)
	OnPlayback func(playing bool)
	OnReset    func()
}

// Option configures a Terminal.
type Option func(*Terminal)

// WithResizes feeds container size changes to the chart.
func WithResizes(ch <-chan chart.Size) Option {
	return func(t *Terminal) { t.resizes = ch }
}

// New assembles a terminal. The ledger must read prices from state.
func New(stream Stream, state *market.State, l *ledger.Ledger, c *chart.Adapter, speed float64, log *slog.Logger, opts ...Option) (*Terminal, error) {
	if !validSpeed(speed) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	t := &Terminal{
		stream: stream,
		state:  state,
		ledger: l,
		chart:  c,
		log:    logger.Component(log, "terminal"),
		speed:  speed,
		cmds:   make(chan func()),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Run creates the chart and processes events and commands until ctx is
// cancelled. On every exit path the stream is stopped and the chart released.
func (t *Terminal) Run(ctx context.Context) error {
	defer close(t.done)
	defer t.chart.Close()
	defer t.stream.Stop()

	t.runCtx = ctx
	if err := t.chart.Init(); err != nil {
		return err
	}
	t.log.Info("terminal running", slog.Float64("speed", t.speed))

	events := t.stream.Events()
	resizes := t.resizes
	for {
		select {
		case <-ctx.Done():
			t.log.Info("terminal stopping")
			return nil

		case ev := <-events:
			t.handleEvent(ev)

		case sz, ok := <-resizes:
			if !ok {
				resizes = nil
				continue
			}
			t.chart.Resize(sz)

		case fn := <-t.cmds:
			// Events already queued arrived before the command.
			for n := len(events); n > 0; n-- {
				t.handleEvent(<-events)
			}
			fn()
		}
	}
}

func (t *Terminal) handleEvent(ev model.Event) {
	u, ok := t.state.Apply(ev)
	if !ok {
		t.log.Debug("event discarded", slog.String("kind", ev.Kind.String()),
			slog.Uint64("session", ev.Session), slog.Uint64("active", t.state.Session()))
		if t.OnDiscard != nil {
			t.OnDiscard(ev)
		}
		return
	}
	if u.Kind == model.KindCandle {
		t.chart.Apply(u)
	}
	if t.OnUpdate != nil {
		t.OnUpdate(u)
	}
}

func (t *Terminal) setPlaying(on bool) {
	if on == t.state.IsPlaying() {
		return
	}
	if on {
		session := t.stream.Start(t.runCtx, t.speed)
		t.state.Play(session)
		t.log.Info("playback started", slog.Uint64("session", session), slog.Float64("speed", t.speed))
	} else {
		// Stop the state first: anything still queued from the old
		// connection is discarded.
		t.state.Stop()
		t.stream.Stop()
		t.log.Info("playback stopped")
	}
	if t.OnPlayback != nil {
		t.OnPlayback(on)
	}
}

// do runs fn on the loop goroutine and waits for it.
func (t *Terminal) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case t.cmds <- func() { fn(); close(done) }:
	case <-t.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-t.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TogglePlay flips playback and returns the new state.
func (t *Terminal) TogglePlay(ctx context.Context) (playing bool, err error) {
	err = t.do(ctx, func() {
		t.setPlaying(!t.state.IsPlaying())
		playing = t.state.IsPlaying()
	})
	return playing, err
}

// SetPlaying starts or stops playback. Setting the current state is a no-op.
func (t *Terminal) SetPlaying(ctx context.Context, on bool) error {
	return t.do(ctx, func() { t.setPlaying(on) })
}

// SetSpeed changes the speed factor. A playing stream is restarted at the
// new speed.
func (t *Terminal) SetSpeed(ctx context.Context, speed float64) error {
	if !validSpeed(speed) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	return t.do(ctx, func() {
		if speed == t.speed {
			return
		}
		t.speed = speed
		if t.state.IsPlaying() {
			session := t.stream.Start(t.runCtx, speed)
			t.state.Play(session)
			t.log.Info("stream restarted", slog.Uint64("session", session), slog.Float64("speed", speed))
		}
	})
}

// PlaceOrder opens a market position at the live price. ok is false when
// the order was ignored.
func (t *Terminal) PlaceOrder(ctx context.Context, side model.Side, qty float64) (tr model.Trade, ok bool, err error) {
	err = t.do(ctx, func() { tr, ok = t.ledger.PlaceOrder(side, qty) })
	return tr, ok, err
}

// ClosePosition closes an open position at the live price. ok is false
// for unknown or already closed ids.
func (t *Terminal) ClosePosition(ctx context.Context, id string) (tr model.Trade, ok bool, err error) {
	err = t.do(ctx, func() { tr, ok = t.ledger.ClosePosition(id) })
	return tr, ok, err
}

// ResetSimulation stops playback, restores the initial balance, and clears
// the trades, the current candle and the chart.
func (t *Terminal) ResetSimulation(ctx context.Context) error {
	return t.do(ctx, func() {
		t.setPlaying(false)
		t.ledger.Reset()
		t.state.Reset()
		t.chart.Clear()
		t.log.Info("simulation reset")
		if t.OnReset != nil {
			t.OnReset()
		}
	})
}

// ToggleTheme switches between dark and light and returns the new theme.
func (t *Terminal) ToggleTheme(ctx context.Context) (theme chart.Theme, err error) {
	err = t.do(ctx, func() {
		theme = t.chart.Theme().Toggle()
		t.chart.SetTheme(theme)
	})
	return theme, err
}

// Resize applies a new container size to the chart.
func (t *Terminal) Resize(ctx context.Context, size chart.Size) error {
	return t.do(ctx, func() { t.chart.Resize(size) })
}

// Snapshot returns a copy of the current state.
func (t *Terminal) Snapshot(ctx context.Context) (s Snapshot, err error) {
	err = t.do(ctx, func() {
		s = Snapshot{
			IsPlaying:    t.state.IsPlaying(),
			Speed:        t.speed,
			Balance:      t.ledger.Balance(),
			CurrentPrice: t.state.Price(),
			Trades:       t.ledger.Trades(),
			Theme:        t.chart.Theme(),
			Summary:      t.ledger.Summary(),
		}
		if c, ok := t.state.Candle(); ok {
			s.CurrentCandle = &c
		}
	})
	return s, err
}

func validSpeed(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
