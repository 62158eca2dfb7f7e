package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nicebartender/npcbridge/convo"
	"github.com/nicebartender/npcbridge/db"
	"github.com/nicebartender/npcbridge/metrics"
	"github.com/nicebartender/npcbridge/ws"
)

const livenessText = "Minecraft AI bridge is running."

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type exchangeLister interface {
	RecentExchanges(characterID string, limit int) ([]db.Exchange, error)
}

type server struct {
	hub     *ws.Hub
	store   *convo.Store
	metrics *metrics.Metrics
	// exchanges is nil when the audit log is disabled.
	exchanges exchangeLister
	now       func() time.Time
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/exchanges", s.handleExchanges)
	return mux
}

// handleRoot accepts game clients on the same path as the liveness text.
func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade failed", "err", err)
			return
		}
		client := ws.NewClient(s.hub, conn)
		s.hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(livenessText))
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": s.hub.Count(),
		"characters":  s.store.Characters(),
		"timestamp":   s.now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *server) handleExchanges(w http.ResponseWriter, r *http.Request) {
	if s.exchanges == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "exchange log disabled"})
		return
	}

	// An empty character lists every character.
	character := r.URL.Query().Get("character")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	rows, err := s.exchanges.RecentExchanges(character, limit)
	if err != nil {
		slog.Error("list exchanges failed", "character", character, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list exchanges failed"})
		return
	}
	if rows == nil {
		rows = []db.Exchange{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "err", err)
	}
}
