// Package feed provides the WebSocket client that streams replayed price
// events from the simulation service.
//
// On connect the client sends one control message:
//
//	{"command":"START","speed":1}
//
// and then receives CANDLE and TICK envelopes:
//
//	{"type":"CANDLE","data":{"timestamp":"2024-01-01 09:15:00","open":1,"high":2,"low":0.5,"close":1.5}}
//	{"type":"TICK","data":{"price":21500.25}}
//
// There is no reconnect policy: a dropped stream stays down until the
// caller starts it again.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

// Config holds configuration for the ingest client.
type Config struct {
	// URL of the simulation endpoint, e.g. "ws://localhost:8000/ws/simulation"
	URL string

	// Source is the zone of timestamps that carry no offset. Defaults to UTC.
	Source *time.Location

	// DisplayOffset is added to every candle time.
	DisplayOffset time.Duration

	// Buffer is the capacity of the events channel. Defaults to 1024.
	Buffer int

	// HandshakeTimeout bounds the dial. Zero means the dialer default.
	HandshakeTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Source == nil {
		c.Source = time.UTC
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
}

// Ingestor owns at most one live connection to the simulation service and
// pushes normalized events into a single channel.
type Ingestor struct {
	cfg     Config
	dec     Decoder
	dialer  *websocket.Dialer
	events  chan model.Event
	log     *slog.Logger
	mu      sync.Mutex
	session uint64
	cancel  context.CancelFunc
	done    chan struct{}

	// Optional hooks. Called from the connection goroutine.
	OnConnect func(session uint64)
	OnError   func(session uint64, err error)

	// OnDisconnect fires once when a session's goroutine exits. err is nil
	// unless the stream failed.
	OnDisconnect func(session uint64, err error)
}

// New creates a new Ingestor. Returns an error if the URL is unparseable.
func New(cfg Config, log *slog.Logger) (*Ingestor, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("feed: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("feed: url scheme must be ws or wss, got %q", u.Scheme)
	}
	dialer := *websocket.DefaultDialer
	if cfg.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = cfg.HandshakeTimeout
	}
	return &Ingestor{
		cfg:    cfg,
		dec:    Decoder{Source: cfg.Source, Offset: cfg.DisplayOffset},
		dialer: &dialer,
		events: make(chan model.Event, cfg.Buffer),
		log:    logger.Component(log, "feed"),
	}, nil
}

// Events returns the channel all connections publish into. It is never closed.
func (ing *Ingestor) Events() <-chan model.Event {
	return ing.events
}

// Start stops any current connection, then opens a new one in the
// background and returns its session id. Events carry that id.
func (ing *Ingestor) Start(ctx context.Context, speed float64) uint64 {
	ing.Stop()

	ing.mu.Lock()
	defer ing.mu.Unlock()

	ing.session++
	session := ing.session
	connCtx, cancel := context.WithCancel(logger.WithSessionID(ctx, session))
	done := make(chan struct{})
	ing.cancel = cancel
	ing.done = done

	go func() {
		defer close(done)
		err := ing.runOnce(connCtx, session, speed)
		if err != nil {
			ing.log.Warn("stream ended", append(logger.LogWithSession(connCtx), slog.Any("err", err))...)
			if ing.OnError != nil {
				ing.OnError(session, err)
			}
		}
		if ing.OnDisconnect != nil {
			ing.OnDisconnect(session, err)
		}
	}()
	return session
}

// Stop closes the current connection, if any, and waits for its goroutine
// to exit. Safe to call repeatedly.
func (ing *Ingestor) Stop() {
	ing.mu.Lock()
	cancel, done := ing.cancel, ing.done
	ing.cancel, ing.done = nil, nil
	ing.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// runOnce makes a single connection and reads until disconnect or ctx cancel.
// A nil return means the context was cancelled.
func (ing *Ingestor) runOnce(ctx context.Context, session uint64, speed float64) error {
	conn, _, err := ing.dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dial %s: %w", ing.cfg.URL, err)
	}
	defer conn.Close()

	// Closes the connection when ctx is cancelled so ReadMessage unblocks.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stop"),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stopWatch:
		}
	}()

	if err := conn.WriteJSON(model.Command{Command: model.CommandStart, Speed: speed}); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("send start: %w", err)
	}
	ing.log.Info("connected", append(logger.LogWithSession(ctx),
		slog.String("url", ing.cfg.URL), slog.Float64("speed", speed))...)
	if ing.OnConnect != nil {
		ing.OnConnect(session)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		ev, err := ing.dec.Decode(raw)
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, ErrUnknownType) {
				level = slog.LevelDebug
			}
			ing.log.Log(ctx, level, "dropping message",
				append(logger.LogWithSession(ctx), slog.Any("err", err))...)
			if ing.OnError != nil {
				ing.OnError(session, err)
			}
			continue
		}
		ev.Session = session

		select {
		case ing.events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}
