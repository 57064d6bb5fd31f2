// Package redis mirrors terminal activity to Redis for external consumers:
// candles and trades are published on PubSub channels, the latest candle is
// cached, candles are appended to a capped stream and trades are kept in a
// hash by id.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

const (
	// approximate cap, trimmed by Redis
	candleStreamMaxLen = 1000
	latestTTL          = 30 * time.Minute
	writeTimeout       = 2 * time.Second
)

// Kind identifies what a Message carries.
type Kind string

const (
	KindCandle Kind = "candle"
	KindTrade  Kind = "trade"
	KindReset  Kind = "reset"
)

// Message is one unit of work for the publisher.
type Message struct {
	Kind Kind
	ID   string // trade id, KindTrade only
	Data []byte
}

// CandleMessage wraps an accepted candle.
func CandleMessage(c model.Candle) Message {
	return Message{Kind: KindCandle, Data: c.JSON()}
}

// TradeMessage wraps a trade after it was opened or closed.
func TradeMessage(tr model.Trade) Message {
	data, _ := json.Marshal(tr)
	return Message{Kind: KindTrade, ID: tr.ID, Data: data}
}

// ResetMessage announces a simulation reset.
func ResetMessage() Message {
	return Message{Kind: KindReset, Data: []byte(`{}`)}
}

// Keys names every Redis key used for one symbol.
type Keys struct {
	Symbol string
}

func (k Keys) Channel(kind Kind) string { return "pub:sim:" + string(kind) + ":" + k.Symbol }
func (k Keys) LatestCandle() string { return "sim:candle:latest:" + k.Symbol }
func (k Keys) CandleStream() string { return "sim:candle:" + k.Symbol }
func (k Keys) Trades() string { return "sim:trades:" + k.Symbol }

// Config configures the publisher.
type Config struct {
	Addr     string
	Password string
	DB       int
	Symbol   string
	Queue    int // pending messages before Publish drops, default 256
}

// Publisher ships messages to Redis from a single goroutine. Writes go
// through a Breaker; while it is open messages are dropped.
type Publisher struct {
	client  *goredis.Client
	keys    Keys
	breaker *Breaker
	queue   chan Message
	log     *slog.Logger

	// Optional hooks for metrics.
	OnPublish func(d time.Duration, err error)
	OnDrop    func(m Message)
}

// New connects to Redis and pings it.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	p := NewWithClient(client, cfg, log)
	p.log.Info("connected", slog.String("addr", cfg.Addr))
	return p, nil
}

// NewWithClient builds a publisher around an existing client without pinging.
func NewWithClient(client *goredis.Client, cfg Config, log *slog.Logger) *Publisher {
	if cfg.Queue <= 0 {
		cfg.Queue = 256
	}
	return &Publisher{
		client:  client,
		keys:    Keys{Symbol: cfg.Symbol},
		breaker: NewBreaker(5, 10*time.Second),
		queue:   make(chan Message, cfg.Queue),
		log:     logger.Component(log, "redis"),
	}
}

// Client returns the underlying client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker returns the breaker guarding writes.
func (p *Publisher) Breaker() *Breaker { return p.breaker }

// Publish queues m without blocking. A full queue drops the message.
func (p *Publisher) Publish(m Message) {
	select {
	case p.queue <- m:
	default:
		p.drop(m)
	}
}

// Run writes queued messages until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.queue:
			p.write(ctx, m)
		}
	}
}

// Close releases the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) write(ctx context.Context, m Message) {
	start := time.Now()
	err := p.breaker.Do(func() error {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		_, err := p.pipeline(wctx, m).Exec(wctx)
		return err
	})
	if err == ErrBreakerOpen {
		p.drop(m)
		return
	}
	if p.OnPublish != nil {
		p.OnPublish(time.Since(start), err)
	}
	if err != nil {
		p.log.Warn("publish failed", slog.String("kind", string(m.Kind)), slog.Any("error", err))
		p.drop(m)
	}
}

func (p *Publisher) pipeline(ctx context.Context, m Message) goredis.Pipeliner {
	pipe := p.client.Pipeline()
	data := string(m.Data)
	switch m.Kind {
	case KindCandle:
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: p.keys.CandleStream(),
			MaxLen: candleStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Set(ctx, p.keys.LatestCandle(), data, latestTTL)
	case KindTrade:
		pipe.HSet(ctx, p.keys.Trades(), m.ID, data)
	case KindReset:
		pipe.Del(ctx, p.keys.Trades(), p.keys.LatestCandle(), p.keys.CandleStream())
	}
	pipe.Publish(ctx, p.keys.Channel(m.Kind), data)
	return pipe
}

func (p *Publisher) drop(m Message) {
	if p.OnDrop != nil {
		p.OnDrop(m)
	}
}
