// Package ledger manages simulated positions and the cash balance.
//
// All positions are immediate market fills at the live price. A Ledger is
// not safe for concurrent use; the terminal's event loop owns it.
package ledger

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

// PriceSource is the read-only view of market state the ledger needs.
type PriceSource interface {
	Price() float64
	Candle() (model.Candle, bool)
}

// Config configures a Ledger.
type Config struct {
	Symbol         string
	InitialBalance float64
}

// Ledger holds trades newest-first and the running balance.
type Ledger struct {
	cfg      Config
	src      PriceSource
	log      *slog.Logger
	balance  decimal.Decimal
	realized decimal.Decimal
	trades   []*model.Trade
	byID     map[string]*model.Trade

	newID func() string
	now   func() time.Time

	// OnTrade is called after a trade is opened or closed.
	OnTrade func(model.Trade)
}

// New creates a ledger reading prices from src.
func New(src PriceSource, cfg Config, log *slog.Logger) *Ledger {
	return &Ledger{
		cfg:     cfg,
		src:     src,
		log:     logger.Component(log, "ledger"),
		balance: decimal.NewFromFloat(cfg.InitialBalance),
		byID:    make(map[string]*model.Trade),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// PlaceOrder opens a position at the live price. A quantity that is not a
// positive finite number is ignored and ok is false.
func (l *Ledger) PlaceOrder(side model.Side, qty float64) (model.Trade, bool) {
	if !side.Valid() || !(qty > 0) || math.IsInf(qty, 1) {
		l.log.Debug("order ignored", slog.String("side", string(side)), slog.Float64("qty", qty))
		return model.Trade{}, false
	}

	price := l.src.Price()
	if !finite(price) {
		l.log.Warn("order ignored: no valid live price", slog.Float64("price", price))
		return model.Trade{}, false
	}

	ts := l.now()
	if c, ok := l.src.Candle(); ok {
		ts = c.DisplayTime()
	}

	tr := &model.Trade{
		ID:         l.newID(),
		Symbol:     l.cfg.Symbol,
		Side:       side,
		EntryPrice: price,
		Quantity:   qty,
		Timestamp:  ts,
		Status:     model.StatusOpen,
	}
	l.trades = append([]*model.Trade{tr}, l.trades...)
	l.byID[tr.ID] = tr

	l.log.Info("position opened",
		slog.String("id", tr.ID), slog.String("side", string(side)),
		slog.Float64("qty", qty), slog.Float64("entry", tr.EntryPrice))
	l.emit(tr)
	return tr.Clone(), true
}

// ClosePosition closes an open position at the live price and books its
// P&L into the balance. Unknown or already closed ids are a no-op and ok is
// false.
func (l *Ledger) ClosePosition(id string) (model.Trade, bool) {
	tr, found := l.byID[id]
	if !found || !tr.IsOpen() {
		l.log.Debug("close ignored", slog.String("id", id), slog.Bool("known", found))
		return model.Trade{}, false
	}

	exit := l.src.Price()
	if !finite(exit) {
		l.log.Warn("close deferred: no valid live price", slog.String("id", id), slog.Float64("price", exit))
		return model.Trade{}, false
	}
	pnl := RealizedPnL(tr.Side, tr.EntryPrice, exit, tr.Quantity)
	pnlF := pnl.InexactFloat64()

	// Status, exit, pnl and balance change together.
	tr.Status = model.StatusClosed
	tr.ExitPrice = &exit
	tr.PnL = &pnlF
	l.balance = l.balance.Add(pnl)
	l.realized = l.realized.Add(pnl)

	l.log.Info("position closed",
		slog.String("id", tr.ID), slog.Float64("exit", exit),
		slog.Float64("pnl", pnlF), slog.String("balance", l.balance.String()))
	l.emit(tr)
	return tr.Clone(), true
}

// Reset restores the initial endowment and clears every trade, open and
// closed.
func (l *Ledger) Reset() {
	l.balance = decimal.NewFromFloat(l.cfg.InitialBalance)
	l.realized = decimal.Zero
	l.trades = nil
	l.byID = make(map[string]*model.Trade)
	l.log.Info("ledger reset", slog.Float64("balance", l.cfg.InitialBalance))
}

// Balance returns the running cash balance.
func (l *Ledger) Balance() float64 {
	return l.balance.InexactFloat64()
}

// Trades returns copies of all trades, newest first.
func (l *Ledger) Trades() []model.Trade {
	out := make([]model.Trade, len(l.trades))
	for i, tr := range l.trades {
		out[i] = tr.Clone()
	}
	return out
}

// Trade returns a copy of the trade with the given id.
func (l *Ledger) Trade(id string) (model.Trade, bool) {
	tr, ok := l.byID[id]
	if !ok {
		return model.Trade{}, false
	}
	return tr.Clone(), true
}

// OpenPositions returns copies of all OPEN trades, newest first.
func (l *Ledger) OpenPositions() []model.Trade {
	var out []model.Trade
	for _, tr := range l.trades {
		if tr.IsOpen() {
			out = append(out, tr.Clone())
		}
	}
	return out
}

// UnrealizedPnL marks every open position to the live price.
func (l *Ledger) UnrealizedPnL() float64 {
	price := l.src.Price()
	if !finite(price) {
		return 0
	}
	total := decimal.Zero
	for _, tr := range l.trades {
		if tr.IsOpen() {
			total = total.Add(RealizedPnL(tr.Side, tr.EntryPrice, price, tr.Quantity))
		}
	}
	return total.InexactFloat64()
}

// Summary returns balance and P&L totals.
func (l *Ledger) Summary() Summary {
	return Summary{
		Balance:       l.Balance(),
		RealizedPnL:   l.realized.InexactFloat64(),
		UnrealizedPnL: l.UnrealizedPnL(),
		TotalTrades:   len(l.trades),
		OpenPositions: len(l.OpenPositions()),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (l *Ledger) emit(tr *model.Trade) {
	if l.OnTrade != nil {
		l.OnTrade(tr.Clone())
	}
}
