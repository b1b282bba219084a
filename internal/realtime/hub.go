// Package realtime pushes guild events to subscribed WebSocket clients.
//
// A Hub owns the guild group memberships. Every mutation and every delivery
// runs on the goroutine executing Run, so membership needs no locking and the
// events of one Broadcast call reach each client in the order they were sent.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

const commandBuffer = 256

// Frame is the JSON envelope of every message on the socket
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes data into a frame for event
func NewFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s data: %w", event, err)
	}

	frame, err := json.Marshal(Frame{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", event, err)
	}
	return frame, nil
}

// Stats is a snapshot of hub occupancy
type Stats struct {
	Clients int `json:"clients"`
	Groups  int `json:"groups"`
}

// Hub maps guild ids to the clients subscribed to them
type Hub struct {
	groups      map[string]map[*Client]struct{}
	memberships map[*Client]map[string]struct{}
	commands    chan func()
	done        chan struct{}
	logger      *zap.Logger
}

// NewHub creates a hub; nothing is delivered until Run is called
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		groups:      make(map[string]map[*Client]struct{}),
		memberships: make(map[*Client]map[string]struct{}),
		commands:    make(chan func(), commandBuffer),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run processes hub commands until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case cmd := <-h.commands:
			cmd()
		}
	}
}

func (h *Hub) shutdown() {
	for client := range h.memberships {
		close(client.send)
	}
	h.groups = make(map[string]map[*Client]struct{})
	h.memberships = make(map[*Client]map[string]struct{})
	h.logger.Info("realtime hub stopped")
}

// enqueue schedules cmd on the hub loop; it reports false once the hub has stopped
func (h *Hub) enqueue(cmd func()) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.commands <- cmd:
		return true
	case <-h.done:
		return false
	}
}

// Register adds a client with no group memberships
func (h *Hub) Register(client *Client) {
	ok := h.enqueue(func() {
		if _, exists := h.memberships[client]; exists {
			return
		}
		h.memberships[client] = make(map[string]struct{})
		h.logger.Debug("client registered", zap.String("client_id", client.id))
	})
	if !ok {
		// Hub already stopped
		close(client.send)
	}
}

// Join subscribes a registered client to guildID; joining twice is a no-op
func (h *Hub) Join(client *Client, guildID string) {
	h.enqueue(func() {
		groups, registered := h.memberships[client]
		if !registered {
			return
		}

		members, ok := h.groups[guildID]
		if !ok {
			members = make(map[*Client]struct{})
			h.groups[guildID] = members
		}
		members[client] = struct{}{}
		groups[guildID] = struct{}{}

		h.logger.Debug("client joined guild",
			zap.String("client_id", client.id),
			zap.String("guild_id", guildID),
		)
	})
}

// Leave unsubscribes client from guildID
func (h *Hub) Leave(client *Client, guildID string) {
	h.enqueue(func() {
		h.leave(client, guildID)
	})
}

func (h *Hub) leave(client *Client, guildID string) {
	if members, ok := h.groups[guildID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, guildID)
		}
	}
	if groups, ok := h.memberships[client]; ok {
		delete(groups, guildID)
	}
}

// Unregister removes client from every group and closes its send queue
func (h *Hub) Unregister(client *Client) {
	h.enqueue(func() {
		groups, registered := h.memberships[client]
		if !registered {
			return
		}
		for guildID := range groups {
			h.leave(client, guildID)
		}
		delete(h.memberships, client)
		close(client.send)

		h.logger.Debug("client unregistered", zap.String("client_id", client.id))
	})
}

// Broadcast sends event to every client subscribed to guildID.
// Clients whose queue is full miss the event.
func (h *Hub) Broadcast(guildID, event string, data any) {
	frame, err := NewFrame(event, data)
	if err != nil {
		h.logger.Error("failed to encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}

	h.enqueue(func() {
		members := h.groups[guildID]

		h.logger.Debug("broadcasting event to subscribers",
			zap.String("guild_id", guildID),
			zap.String("event", event),
			zap.Int("subscriber_count", len(members)),
		)

		for client := range members {
			h.deliver(client, frame)
		}
	})
}

// sendTo queues a frame for a single client
func (h *Hub) sendTo(client *Client, frame []byte) {
	h.enqueue(func() {
		if _, registered := h.memberships[client]; registered {
			h.deliver(client, frame)
		}
	})
}

func (h *Hub) deliver(client *Client, frame []byte) {
	// Non-blocking send to avoid blocking on slow consumers
	select {
	case client.send <- frame:
	default:
		h.logger.Warn("client send queue full, dropping event",
			zap.String("client_id", client.id),
		)
	}
}

// GroupSize returns the number of clients subscribed to guildID
func (h *Hub) GroupSize(ctx context.Context, guildID string) (int, error) {
	reply := make(chan int, 1)
	if !h.enqueue(func() { reply <- len(h.groups[guildID]) }) {
		return 0, fmt.Errorf("hub stopped")
	}

	select {
	case n := <-reply:
		return n, nil
	case <-h.done:
		return 0, fmt.Errorf("hub stopped")
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Stats returns the number of registered clients and non-empty groups
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if !h.enqueue(func() { reply <- Stats{Clients: len(h.memberships), Groups: len(h.groups)} }) {
		return Stats{}, fmt.Errorf("hub stopped")
	}

	select {
	case s := <-reply:
		return s, nil
	case <-h.done:
		return Stats{}, fmt.Errorf("hub stopped")
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}
