package model

import "encoding/json"

// EventKind distinguishes the two inbound event shapes.
type EventKind int

const (
	KindCandle EventKind = iota + 1
	KindTick
)

func (k EventKind) String() string {
	switch k {
	case KindCandle:
		return "candle"
	case KindTick:
		return "tick"
	default:
		return "unknown"
	}
}

// Event is a normalized inbound price event.
// Session identifies the connection that produced it; events from a
// superseded connection are discarded by the market state.
type Event struct {
	Kind    EventKind
	Session uint64
	Candle  Candle  // KindCandle only
	Price   float64 // KindTick only
}

// Wire message types on /ws/simulation.
const (
	TypeCandle = "CANDLE"
	TypeTick   = "TICK"

	CommandStart = "START"
)

// Envelope is the outer shape of every inbound message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Command is the control message sent once on connect.
type Command struct {
	Command string  `json:"command"`
	Speed   float64 `json:"speed"`
}

// CandlePayload is the data of a CANDLE message. Prices are pointers so a
// missing field can be told apart from a zero price.
type CandlePayload struct {
	Timestamp string   `json:"timestamp"`
	Open      *float64 `json:"open"`
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	Close     *float64 `json:"close"`
	Symbol    string   `json:"symbol,omitempty"`
}

// TickPayload is the data of a TICK message.
type TickPayload struct {
	Price     *float64 `json:"price"`
	Timestamp string   `json:"timestamp,omitempty"`
}
