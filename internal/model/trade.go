package model

import "time"

// Side is the direction of a market order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// TradeStatus is the lifecycle state of a position. OPEN -> CLOSED only.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// Trade is one position in the ledger.
// ExitPrice and PnL are set only once the trade is CLOSED.
type Trade struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"type"`
	EntryPrice float64     `json:"entry_price"`
	Quantity   float64     `json:"quantity"`
	ExitPrice  *float64    `json:"exit_price,omitempty"`
	PnL        *float64    `json:"pnl,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Status     TradeStatus `json:"status"`
}

// IsOpen reports whether the trade can still be closed.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// Clone returns a deep copy so callers never alias ledger-owned pointers.
func (t *Trade) Clone() Trade {
	cp := *t
	if t.ExitPrice != nil {
		v := *t.ExitPrice
		cp.ExitPrice = &v
	}
	if t.PnL != nil {
		v := *t.PnL
		cp.PnL = &v
	}
	return cp
}
