package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const clientBuffer = 32

// Hub manages Server-Sent Events (SSE) connections and implements Publisher,
// so it can be handed to the analysis service like any other observer.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

// Client represents a single SSE connection.
type Client struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	send    chan []byte
	done    chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

// Register adds a new client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.done)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues the event for every connected client. Slow clients miss
// events rather than blocking the publisher.
func (h *Hub) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	name := topic
	if ev, ok := event.(Event); ok {
		name = ev.Type
	}
	frame := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case <-client.done:
		case client.send <- frame:
		default:
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.done)
	}
	return nil
}

// NewClient creates a new SSE client from an HTTP response writer.
func NewClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &Client{
		writer:  w,
		flusher: flusher,
		send:    make(chan []byte, clientBuffer),
		done:    make(chan struct{}),
	}, nil
}

// Serve writes queued events and periodic pings until ctx ends or the hub
// drops the client. All writes happen on the calling goroutine.
func (c *Client) Serve(ctx context.Context, keepAlive time.Duration) {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	fmt.Fprint(c.writer, ": connected\n\n")
	c.flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case frame := <-c.send:
			if _, err := c.writer.Write(frame); err != nil {
				return
			}
			c.flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(c.writer, ": ping\n\n"); err != nil {
				return
			}
			c.flusher.Flush()
		}
	}
}
