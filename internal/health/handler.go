package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mytechsonamy/mytrader-feed/internal/fanout"
	"github.com/mytechsonamy/mytrader-feed/internal/model"
)

// HandlerDeps are the pipeline hooks the HTTP surface needs.
type HandlerDeps struct {
	Monitor *Monitor

	// LastKnown and LastKnownAll serve the most recent forwarded price
	// even when both sources are down.
	LastKnown    func(symbol string) (model.PriceEvent, bool)
	LastKnownAll func() []model.PriceEvent

	// Reload re-reads the symbol universe and applies it to both
	// ingestion clients. Returns the new universe size.
	Reload func(ctx context.Context) (int, error)
}

// NewHandler builds the HTTP mux for the status port.
func NewHandler(deps HandlerDeps, logger *slog.Logger) http.Handler {
	logger = logger.With("component", "health_http")
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		snap := deps.Monitor.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		if snap.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(snap)
	})

	mux.HandleFunc("GET /prices/latest", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		w.Header().Set("Content-Type", "application/json")

		if symbol := r.URL.Query().Get("symbol"); symbol != "" {
			ev, ok := deps.LastKnown(symbol)
			if !ok {
				http.Error(w, `{"error":"unknown symbol"}`, http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(fanout.NewMessage(ev, now))
			return
		}

		events := deps.LastKnownAll()
		msgs := make([]fanout.Message, 0, len(events))
		for _, ev := range events {
			msgs = append(msgs, fanout.NewMessage(ev, now))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"count":  len(msgs),
			"prices": msgs,
		})
	})

	mux.HandleFunc("POST /admin/symbols/reload", func(w http.ResponseWriter, r *http.Request) {
		count, err := deps.Reload(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			logger.Error("symbol reload failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		logger.Info("symbol universe reloaded", "symbols", count)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "reloaded",
			"symbols": count,
		})
	})

	return mux
}
