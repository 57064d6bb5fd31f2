// cmd/terminal runs the simulated trading terminal: it replays candles from
// the simulation service, plots them, and books paper trades against the
// live price.
//
// The chart is served at /chart, the REST API under /api/v1/, live updates
// on /ws/terminal, Prometheus metrics at /metrics and health at /healthz. Commands are also read from
// stdin; type "help" for the list.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/HeroicKrishna160905/tradeshift-engine/config"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/api"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/chart"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/chart/echarts"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/feed"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/gateway"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/journal"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/ledger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/market"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/metrics"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
	redisstore "github.com/HeroicKrishna160905/tradeshift-engine/internal/store/redis"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/terminal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.Init("terminal", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", slog.String("feed", cfg.FeedURL), slog.String("symbol", cfg.Symbol))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()

	// ---- Domain ----
	theme, err := chart.ParseTheme(cfg.Theme)
	if err != nil {
		return err
	}
	host := echarts.NewHost(cfg.Symbol)
	adapter := chart.NewAdapter(host.Factory(), theme, chart.Size{Width: cfg.ChartWidth, Height: cfg.ChartHeight}, log)
	adapter.OnError = func(error) { m.ChartErrors.Inc() }
	adapter.OnReset = func(int64) { m.TimelineResets.Inc() }

	state := market.New(cfg.InitialPrice)
	led := ledger.New(state, ledger.Config{Symbol: cfg.Symbol, InitialBalance: cfg.InitialBalance}, log)
	m.Balance.Set(cfg.InitialBalance)
	m.CurrentPrice.Set(cfg.InitialPrice)

	ing, err := feed.New(feed.Config{
		URL:              cfg.FeedURL,
		Source:           cfg.SourceZone(),
		DisplayOffset:    cfg.DisplayOffset,
		HandshakeTimeout: 5 * time.Second,
	}, log)
	if err != nil {
		return err
	}
	ing.OnConnect = func(uint64) {
		m.FeedConnects.Inc()
		health.SetFeedConnected(true)
	}
	ing.OnError = func(uint64, error) {
		m.FeedErrors.Inc()
	}
	ing.OnDisconnect = func(uint64, error) {
		health.SetFeedConnected(false)
	}

	// ---- Journal (optional) ----
	var (
		jrnl *journal.Journal
		hist api.History
	)
	tradeCh := make(chan model.Trade, 256)
	if cfg.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
			return err
		}
		jrnl, err = journal.Open(cfg.JournalPath, log)
		if err != nil {
			return err
		}
		defer jrnl.Close()
		jrnl.OnWrite = func(d time.Duration, _ error) { m.JournalWriteDur.Observe(d.Seconds()) }
		hist = jrnl
		health.SetJournal(true, true)
	}

	// ---- Redis (optional, non-fatal) ----
	var pub *redisstore.Publisher
	if cfg.RedisAddr != "" {
		pub, err = redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Symbol:   cfg.Symbol,
		}, log)
		if err != nil {
			log.Warn("redis unavailable, continuing without mirroring", slog.Any("error", err))
			health.SetRedis(true, false)
		} else {
			defer pub.Close()
			pub.OnPublish = func(d time.Duration, _ error) { m.RedisPublishDur.Observe(d.Seconds()) }
			pub.OnDrop = func(redisstore.Message) { m.RedisDropped.Inc() }
			pub.Breaker().OnStateChange = func(_, to redisstore.BreakerState) {
				m.RedisCircuitBreakerState.Set(float64(to))
				log.Warn("redis breaker", slog.String("state", to.String()))
			}
			health.SetRedis(true, true)
		}
	}

	// ---- Browser gateway ----
	hub := gateway.NewHub(500, log)
	defer hub.Close()
	hub.OnDrop = m.GatewayDropped.Inc

	led.OnTrade = func(tr model.Trade) {
		hub.Broadcast(gateway.KindTrade, tr)
		if tr.IsOpen() {
			m.TradesOpened.WithLabelValues(string(tr.Side)).Inc()
		} else {
			m.TradesClosed.WithLabelValues(string(tr.Side)).Inc()
			m.Balance.Set(led.Balance())
		}
		if jrnl != nil {
			select {
			case tradeCh <- tr:
			default:
				log.Warn("journal queue full, trade not recorded", slog.String("trade", tr.ID))
			}
		}
		if pub != nil {
			pub.Publish(redisstore.TradeMessage(tr))
		}
	}

	// ---- Terminal ----
	resizes := make(chan chart.Size, 1)
	term, err := terminal.New(ing, state, led, adapter, cfg.Speed, log, terminal.WithResizes(resizes))
	if err != nil {
		return err
	}
	term.OnUpdate = func(u market.Update) {
		health.SetLastEventTime(time.Now())
		m.CurrentPrice.Set(u.Price)
		switch u.Kind {
		case model.KindCandle:
			hub.Broadcast(gateway.KindCandle, u.Candle)
			m.CandlesTotal.Inc()
			if u.Replace {
				m.CandleRevises.Inc()
			}
			m.Watermark.Set(float64(u.Candle.Time))
			if pub != nil {
				pub.Publish(redisstore.CandleMessage(u.Candle))
			}
		case model.KindTick:
			hub.Broadcast(gateway.KindTick, map[string]float64{"price": u.Price})
			m.TicksTotal.Inc()
		}
	}
	term.OnDiscard = func(model.Event) { m.DiscardedTotal.Inc() }
	term.OnReset = func() {
		hub.Broadcast(gateway.KindReset, struct{}{})
		m.Balance.Set(led.Balance())
		m.CurrentPrice.Set(state.Price())
		m.Watermark.Set(0)
		if pub != nil {
			pub.Publish(redisstore.ResetMessage())
		}
	}
	term.OnPlayback = func(playing bool) {
		hub.Broadcast(gateway.KindPlayback, map[string]bool{"playing": playing})
		health.SetPlaying(playing)
		if playing {
			m.Playing.Set(1)
		} else {
			m.Playing.Set(0)
		}
	}

	// ---- HTTP ----
	srv := metrics.NewServer(cfg.HTTPAddr, health, reg, log, map[string]http.Handler{
		"/chart":       host,
		"/api/v1/":     api.NewRouter(term, hist, log),
		"/ws/terminal": hub,
	})
	srv.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(shutdownCtx)
	}()

	var (
		rdb *goredis.Client
		db  *sql.DB
	)
	if pub != nil {
		rdb = pub.Client()
	}
	if jrnl != nil {
		db = jrnl.DB()
	}
	health.StartLivenessChecker(ctx, rdb, db, 10*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return term.Run(gctx) })
	if jrnl != nil {
		g.Go(func() error {
			jrnl.Run(gctx, tradeCh)
			return nil
		})
	}
	if pub != nil {
		g.Go(func() error {
			pub.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		c := &console{term: term, resizes: resizes, out: os.Stdout}
		err := c.run(gctx, os.Stdin)
		if errors.Is(err, errConsoleClosed) {
			// stdin closed: keep serving HTTP until a signal arrives
			return nil
		}
		return err
	})

	log.Info("ready", slog.String("http", cfg.HTTPAddr))
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
