package simfeed

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

// BarSource loads the bars replayed to a new connection.
type BarSource func(ctx context.Context) ([]Bar, error)

// Handler serves the replay stream. Each connection sends one START
// command and then receives messages until it disconnects.
type Handler struct {
	Source      BarSource
	Symbol      string
	Zone        *time.Location
	Interval    time.Duration
	TicksPerBar int // synthesized TICKs before each CANDLE; 0 disables

	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewHandler creates a handler. A nil source replays nothing, so clients
// get random ticks.
func NewHandler(src BarSource, symbol string, zone *time.Location, log *slog.Logger) *Handler {
	return &Handler{
		Source: src,
		Symbol: symbol,
		Zone:   zone,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger.Component(log, "simserver"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	h.log.Info("client connected", slog.String("remote", r.RemoteAddr))

	var cmd model.Command
	if err := conn.ReadJSON(&cmd); err != nil {
		h.log.Warn("read command", slog.Any("error", err))
		return
	}
	if cmd.Command != model.CommandStart {
		h.log.Warn("unexpected command", slog.String("command", cmd.Command))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The client sends nothing after START; reading detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var bars []Bar
	if h.Source != nil {
		if bars, err = h.Source(ctx); err != nil {
			h.log.Error("load bars", slog.Any("error", err))
		}
	}
	rep := NewReplayer(bars, h.Symbol, h.Zone, h.log)
	rep.Interval = h.Interval
	rep.TicksPerBar = h.TicksPerBar

	err = rep.Run(ctx, cmd.Speed, func(msg []byte) error {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, msg)
	})
	h.log.Info("client disconnected", slog.String("remote", r.RemoteAddr), slog.Any("reason", err))
}
