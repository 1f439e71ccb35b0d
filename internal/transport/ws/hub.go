package ws

import (
	"context"
	"sync/atomic"

	"github.com/vedran77/agroconnect/internal/chat"
	"go.uber.org/zap"
)

// Hub tracks every connected client. Fan-out of changes happens through
// each client's chat session; the hub owns lifecycle only.
type Hub struct {
	directory chat.Directory
	log       chat.Log
	window    int
	logger    *zap.Logger

	clients    map[*Client]struct{}
	connected  atomic.Int64
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(directory chat.Directory, log chat.Log, window int, logger *zap.Logger) *Hub {
	return &Hub{
		directory:  directory,
		log:        log,
		window:     window,
		logger:     logger.Named("ws"),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's main event loop. It returns when ctx is done, after
// closing every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.connected.Store(int64(len(h.clients)))
			h.logger.Info("client connected",
				zap.String("user_id", client.identity.UserID), zap.Int("total", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.connected.Store(int64(len(h.clients)))
				client.shutdown()
				h.logger.Info("client disconnected",
					zap.String("user_id", client.identity.UserID), zap.Int("total", len(h.clients)))
			}

		case <-ctx.Done():
			for client := range h.clients {
				client.shutdown()
			}
			h.clients = nil
			h.connected.Store(0)
			h.logger.Info("hub stopped")
			return nil
		}
	}
}

// Connected returns the number of live clients.
func (h *Hub) Connected() int {
	return int(h.connected.Load())
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.shutdown()
	}
}
