package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeInterval is how often every open connection is pinged.
const ProbeInterval = 30 * time.Second

// Hub is the registry of live connections. Run owns registration; the client
// set is also readable from other goroutines through Count.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Subscriptions are the event names requested from every new connection.
	Subscriptions []string
	// ProbeInterval overrides the package default when positive.
	ProbeInterval time.Duration

	OnMessage    func(client *Client, data []byte)
	OnConnect    func(client *Client)
	OnDisconnect func(client *Client)
}

func NewHub(subscriptions ...string) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		done:          make(chan struct{}),
		Subscriptions: subscriptions,
	}
}

// Run processes registrations and probes connections until ctx is cancelled,
// then closes every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	interval := h.ProbeInterval
	if interval <= 0 {
		interval = ProbeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			slog.Info("hub stopped")
			return

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)

		case <-ticker.C:
			go h.probeAll()
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	for _, event := range h.Subscriptions {
		client.SendJSON(NewSubscribe(event))
	}
	slog.Info("new connection", "client", client.ID(), "total", total)

	if h.OnConnect != nil {
		h.OnConnect(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	client.closeSend()
	slog.Info("connection closed", "client", client.ID(), "total", total)

	if h.OnDisconnect != nil {
		h.OnDisconnect(client)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for client := range clients {
		client.closeSend()
		if h.OnDisconnect != nil {
			h.OnDisconnect(client)
		}
	}
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		out = append(out, client)
	}
	return out
}

// probeAll pings every connection. Failures are left to the read pump.
func (h *Hub) probeAll() {
	for _, client := range h.snapshot() {
		if err := client.probe(); err != nil {
			slog.Debug("probe failed", "client", client.ID(), "err", err)
		}
	}
}
