// Package simfeed is a development double of the replay service: it stores
// historical bars in SQLite and streams them over /ws/simulation.
package simfeed

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
)

// Bar is one stored OHLC row.
type Bar struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Store holds bars per symbol.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenStore opens (or creates) the bar database at path.
func OpenStore(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL,
			high   REAL,
			low    REAL,
			close  REAL,
			PRIMARY KEY (symbol, ts)
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	l := logger.Component(log, "simstore")
	l.Info("opened bar store", slog.String("path", path))
	return &Store{db: db, log: l}, nil
}

// DB returns the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Insert writes bars in one transaction. Rows with an existing time are
// replaced.
func (s *Store) Insert(ctx context.Context, symbol string, bars []Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Time.Unix(), b.Open, b.High, b.Low, b.Close); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert bar %s: %w", b.Time.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// Bars returns all bars for symbol in time order.
func (s *Store) Bars(ctx context.Context, symbol string) ([]Bar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close FROM bars WHERE symbol = ? ORDER BY ts`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var out []Bar
	for rows.Next() {
		var (
			ts int64
			b  Bar
		)
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Time = time.Unix(ts, 0)
		out = append(out, b)
	}
	return out, rows.Err()
}

var csvTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
}

// ParseCSV reads bars from CSV with a header row. Column names are matched
// case-insensitively: "date" or "datetime", "open", "high", "low", "close".
// Timestamps without an offset are read in loc.
func ParseCSV(r io.Reader, loc *time.Location) ([]Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	tsCol, ok := col["date"]
	if !ok {
		if tsCol, ok = col["datetime"]; !ok {
			return nil, errors.New("csv: no date or datetime column")
		}
	}
	var priceCols [4]int
	for i, name := range [4]string{"open", "high", "low", "close"} {
		c, ok := col[name]
		if !ok {
			return nil, fmt.Errorf("csv: no %s column", name)
		}
		priceCols[i] = c
	}

	var bars []Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return bars, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		ts, err := parseCSVTime(rec[tsCol], loc)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		var p [4]float64
		for i, c := range priceCols {
			if p[i], err = strconv.ParseFloat(strings.TrimSpace(rec[c]), 64); err != nil {
				return nil, fmt.Errorf("csv line %d: %w", line, err)
			}
		}
		bars = append(bars, Bar{Time: ts, Open: p[0], High: p[1], Low: p[2], Close: p[3]})
	}
}

// ImportCSV parses r and stores the bars under symbol. It returns the
// number of bars imported.
func (s *Store) ImportCSV(ctx context.Context, symbol string, r io.Reader, loc *time.Location) (int, error) {
	bars, err := ParseCSV(r, loc)
	if err != nil {
		return 0, err
	}
	if err := s.Insert(ctx, symbol, bars); err != nil {
		return 0, err
	}
	s.log.Info("imported bars", slog.String("symbol", symbol), slog.Int("count", len(bars)))
	return len(bars), nil
}

func parseCSVTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}
