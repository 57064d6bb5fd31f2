// Package journal keeps a write-only SQLite audit trail of simulated trades.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id          TEXT PRIMARY KEY,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	qty         REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price  REAL,
	pnl         REAL,
	status      TEXT NOT NULL,
	chart_time  TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_recorded_at ON trades(recorded_at);
`

// chartTimeLayout renders a trade's display time as the wall clock shown
// on the chart, with no zone marker.
const chartTimeLayout = "2006-01-02 15:04:05"

// recordedLayout is fixed width so recorded_at sorts as text.
const recordedLayout = "2006-01-02T15:04:05.000000Z"

// Journal records every trade state change. A trade is stored once and
// updated in place when it closes.
type Journal struct {
	mu  sync.Mutex
	db  *sql.DB
	log *slog.Logger
	now func() time.Time

	// OnWrite, if set, observes each write.
	OnWrite func(d time.Duration, err error)
}

// Open opens (or creates) the journal database at path.
func Open(path string, log *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	l := logger.Component(log, "journal")
	l.Info("opened trade journal", slog.String("path", path))
	return &Journal{db: db, log: l, now: time.Now}, nil
}

// Record upserts a trade by id. chart_time is the trade's chart wall clock
// and recorded_at the real instant of the first write.
func (j *Journal) Record(tr model.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	_, err := j.db.Exec(
		`INSERT INTO trades (id, symbol, side, qty, entry_price, exit_price, pnl, status, chart_time, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			exit_price = excluded.exit_price,
			pnl        = excluded.pnl,
			status     = excluded.status,
			updated_at = CURRENT_TIMESTAMP`,
		tr.ID,
		tr.Symbol,
		string(tr.Side),
		tr.Quantity,
		tr.EntryPrice,
		nullable(tr.ExitPrice),
		nullable(tr.PnL),
		string(tr.Status),
		tr.Timestamp.UTC().Format(chartTimeLayout),
		j.now().UTC().Format(recordedLayout),
	)
	if j.OnWrite != nil {
		j.OnWrite(time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("journal: record %s: %w", tr.ID, err)
	}
	return nil
}

// Entry is a row from the trades table.
type Entry struct {
	ID         string   `json:"id"`
	Symbol     string   `json:"symbol"`
	Side       string   `json:"type"`
	Qty        float64  `json:"quantity"`
	EntryPrice float64  `json:"entry_price"`
	ExitPrice  *float64 `json:"exit_price"`
	PnL        *float64 `json:"pnl"`
	Status     string   `json:"status"`
	ChartTime  string   `json:"chart_time"`
	RecordedAt string   `json:"recorded_at"`
}

// Recent returns the last limit trades by first write, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, symbol, side, qty, entry_price, exit_price, pnl, status, chart_time, recorded_at
		 FROM trades ORDER BY recorded_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			exit, pnl sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Side, &e.Qty, &e.EntryPrice,
			&exit, &pnl, &e.Status, &e.ChartTime, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		if exit.Valid {
			e.ExitPrice = &exit.Float64
		}
		if pnl.Valid {
			e.PnL = &pnl.Float64
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Run records trades from ch until ctx is cancelled or ch is closed.
// Failed writes are logged and skipped.
func (j *Journal) Run(ctx context.Context, ch <-chan model.Trade) {
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-ch:
			if !ok {
				return
			}
			if err := j.Record(tr); err != nil {
				j.log.Error("write failed", slog.String("trade", tr.ID), slog.Any("error", err))
			}
		}
	}
}

// DB exposes the handle for health probes.
func (j *Journal) DB() *sql.DB { return j.db }

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func nullable(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
