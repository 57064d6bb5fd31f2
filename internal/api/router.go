// Package api exposes the terminal's commands and state over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/chart"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/journal"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/terminal"
)

// Controller is the subset of *terminal.Terminal the API drives.
type Controller interface {
	SetPlaying(ctx context.Context, on bool) error
	SetSpeed(ctx context.Context, speed float64) error
	PlaceOrder(ctx context.Context, side model.Side, qty float64) (model.Trade, bool, error)
	ClosePosition(ctx context.Context, id string) (model.Trade, bool, error)
	ResetSimulation(ctx context.Context) error
	ToggleTheme(ctx context.Context) (chart.Theme, error)
	Snapshot(ctx context.Context) (terminal.Snapshot, error)
}

// History lists journaled trades.
type History interface {
	Recent(limit int) ([]journal.Entry, error)
}

type orderRequest struct {
	Type     model.Side `json:"type"`
	Quantity float64    `json:"quantity"`
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

// NewRouter sets up the HTTP routes. hist may be nil.
func NewRouter(c Controller, hist History, log *slog.Logger) *http.ServeMux {
	log = logger.Component(log, "api")
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		s, err := c.Snapshot(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, log, http.StatusOK, s)
	})

	mux.HandleFunc("POST /api/v1/play", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, c, log, c.SetPlaying(r.Context(), true))
	})

	mux.HandleFunc("POST /api/v1/pause", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, c, log, c.SetPlaying(r.Context(), false))
	})

	mux.HandleFunc("POST /api/v1/speed", func(w http.ResponseWriter, r *http.Request) {
		var req speedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		respond(w, r, c, log, c.SetSpeed(r.Context(), req.Speed))
	})

	mux.HandleFunc("POST /api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		tr, ok, err := c.PlaceOrder(r.Context(), req.Type, req.Quantity)
		if err != nil {
			writeError(w, log, err)
			return
		}
		if !ok {
			http.Error(w, "order ignored", http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, log, http.StatusCreated, tr)
	})

	mux.HandleFunc("POST /api/v1/positions/{id}/close", func(w http.ResponseWriter, r *http.Request) {
		tr, ok, err := c.ClosePosition(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		if !ok {
			http.Error(w, "no open position", http.StatusNotFound)
			return
		}
		writeJSON(w, log, http.StatusOK, tr)
	})

	mux.HandleFunc("POST /api/v1/reset", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, c, log, c.ResetSimulation(r.Context()))
	})

	mux.HandleFunc("POST /api/v1/theme", func(w http.ResponseWriter, r *http.Request) {
		_, err := c.ToggleTheme(r.Context())
		respond(w, r, c, log, err)
	})

	mux.HandleFunc("GET /api/v1/journal", func(w http.ResponseWriter, r *http.Request) {
		if hist == nil {
			http.Error(w, "journal disabled", http.StatusNotFound)
			return
		}
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		entries, err := hist.Recent(limit)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, log, http.StatusOK, entries)
	})

	return mux
}

// respond answers a command with the resulting snapshot.
func respond(w http.ResponseWriter, r *http.Request, c Controller, log *slog.Logger, err error) {
	if err != nil {
		writeError(w, log, err)
		return
	}
	s, err := c.Snapshot(r.Context())
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, s)
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, terminal.ErrInvalidSpeed):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, terminal.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.Error("request failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON marshals v in full first; an encoding failure becomes a 500.
func writeJSON(w http.ResponseWriter, log *slog.Logger, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error("encode response", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(b, '\n'))
}
