// Package market holds the live price state machine fed by the stream.
//
// State is not safe for concurrent use; it is owned by the terminal's
// event loop, which serializes every transition.
package market

import "github.com/HeroicKrishna160905/tradeshift-engine/internal/model"

// Phase is the playback state.
type Phase int

const (
	Stopped Phase = iota
	Playing
)

func (p Phase) String() string {
	if p == Playing {
		return "playing"
	}
	return "stopped"
}

// Update describes what an accepted event changed.
type Update struct {
	Kind model.EventKind

	// Candle is the accepted candle (KindCandle only).
	Candle model.Candle

	// Reset is set when the candle time went backwards: consumers must
	// clear their history before applying Candle.
	Reset bool

	// Replace is set when the candle repeats the last bucket and overwrites it.
	Replace bool

	// Price is the live price after the event.
	Price float64
}

// IsRewind is the single rewind rule shared by every consumer that tracks
// its own "latest time seen": a candle earlier than the last accepted one
// means the stream looped or restarted.
func IsRewind(t, last int64, seen bool) bool {
	return seen && t < last
}

// State is the market state machine.
type State struct {
	phase     Phase
	session   uint64
	price     float64
	candle    *model.Candle
	watermark int64
	seen      bool
}

// New returns a stopped state with the given initial live price.
func New(initialPrice float64) *State {
	return &State{price: initialPrice}
}

// Play enters PLAYING for the given stream session. The watermark and last
// candle are kept so a resumed stream continues from the last position.
func (s *State) Play(session uint64) {
	s.phase = Playing
	s.session = session
}

// Stop enters STOPPED. Price and candle stay frozen.
func (s *State) Stop() {
	s.phase = Stopped
}

// Reset clears the current candle and the watermark. The live price is kept.
func (s *State) Reset() {
	s.candle = nil
	s.watermark = 0
	s.seen = false
}

// Apply runs one event through the state machine. It returns false when the
// event was discarded: received while stopped, or produced by a superseded
// session.
func (s *State) Apply(ev model.Event) (Update, bool) {
	if s.phase != Playing || ev.Session != s.session {
		return Update{}, false
	}

	switch ev.Kind {
	case model.KindTick:
		s.price = ev.Price
		return Update{Kind: model.KindTick, Price: s.price}, true

	case model.KindCandle:
		c := ev.Candle
		u := Update{
			Kind:    model.KindCandle,
			Candle:  c,
			Reset:   IsRewind(c.Time, s.watermark, s.seen),
			Replace: s.seen && c.Time == s.watermark,
		}
		s.watermark = c.Time
		s.seen = true
		s.candle = &c
		s.price = c.Close
		u.Price = s.price
		return u, true
	}
	return Update{}, false
}

// Phase returns the playback state.
func (s *State) Phase() Phase { return s.phase }

// IsPlaying reports whether the state is PLAYING.
func (s *State) IsPlaying() bool { return s.phase == Playing }

// Session returns the session id accepted while playing.
func (s *State) Session() uint64 { return s.session }

// Price returns the live price.
func (s *State) Price() float64 { return s.price }

// Candle returns a copy of the most recently accepted candle.
func (s *State) Candle() (model.Candle, bool) {
	if s.candle == nil {
		return model.Candle{}, false
	}
	return *s.candle, true
}

// Watermark returns the last accepted candle time. ok is false before the
// first candle of a run.
func (s *State) Watermark() (t int64, ok bool) {
	return s.watermark, s.seen
}
