package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

// RealizedPnL returns (exit - entry) * qty * sign, with sign +1 for BUY and
// -1 for SELL. Arithmetic is done in decimal so that equal entry and exit
// prices give exactly zero.
func RealizedPnL(side model.Side, entry, exit, qty float64) decimal.Decimal {
	return decimal.NewFromFloat(exit).
		Sub(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromFloat(qty)).
		Mul(decimal.NewFromInt(side.Sign()))
}

// Summary is a point-in-time view of the ledger.
type Summary struct {
	Balance       float64 `json:"balance"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalTrades   int     `json:"total_trades"`
	OpenPositions int     `json:"open_positions"`
}
