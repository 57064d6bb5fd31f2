// cmd/simserver serves the replay stream the terminal consumes, for
// development without the real replay service.
//
// Bars come from a SQLite store, optionally seeded from a CSV file at
// startup. With an empty store clients receive random TICKs.
//
// Config (env vars):
//
//	SIM_ADDR                   listen address (default ":8000")
//	SIM_DB_PATH                bar database (default "data/candles.db")
//	SIM_IMPORT_CSV             CSV to import before serving (optional)
//	SIM_SYMBOL                 symbol to replay (default "NIFTY 50")
//	SIM_TICKS_PER_CANDLE       synthesized TICKs before each CANDLE (default 0)
//	SOURCE_UTC_OFFSET_SECONDS  zone of the wire timestamps (default 19800)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/HeroicKrishna160905/tradeshift-engine/config"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/simfeed"
)

func main() {
	cfg, err := config.LoadSim()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.Init("simserver", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.SimConfig, log *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	store, err := simfeed.OpenStore(cfg.DBPath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	zone := cfg.SourceZone()
	if cfg.ImportCSV != "" {
		f, err := os.Open(cfg.ImportCSV)
		if err != nil {
			return err
		}
		_, err = store.ImportCSV(ctx, cfg.Symbol, f, zone)
		f.Close()
		if err != nil {
			return err
		}
	}

	h := simfeed.NewHandler(func(ctx context.Context) ([]simfeed.Bar, error) {
		return store.Bars(ctx, cfg.Symbol)
	}, cfg.Symbol, zone, log)
	h.TicksPerBar = cfg.TicksPerBar

	mux := http.NewServeMux()
	mux.Handle("/ws/simulation", h)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.DB().PingContext(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", slog.String("addr", cfg.Addr), slog.String("symbol", cfg.Symbol))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
