package ws

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/stayconnect/stayconnect/internal/core/domain"
)

// Hub tracks every connected socket and routes events to the sockets a
// given user has open. Implements port.RealTimeGateway.
type Hub struct {
	mu         sync.Mutex
	clients    map[Client]bool
	register   chan Client
	unregister chan Client
	quit       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Client]bool),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Info().Str("client_id", client.ID()).Str("uid", client.UserID().String()).Msg("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()
			log.Info().Str("client_id", client.ID()).Msg("Client unregistered")
		}
	}
}

func (h *Hub) Register(c Client) {
	h.register <- c
}

func (h *Hub) Unregister(c Client) {
	h.unregister <- c
}

func (h *Hub) Stop() {
	close(h.quit)
}

// sendToUser fans ev out to every socket userID has open. An offline
// user is not an error; they simply miss the push.
func (h *Hub) sendToUser(userID domain.UserID, ev Event) {
	h.mu.Lock()
	var targets []Client
	for client := range h.clients {
		if client.UserID() == userID {
			targets = append(targets, client)
		}
	}
	h.mu.Unlock()

	for _, client := range targets {
		if err := client.SendEvent(ev); err != nil {
			log.Error().Err(err).Str("client_id", client.ID()).Msg("Error sending event, dropping client")
			h.drop(client)
		}
	}
}

func (h *Hub) drop(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.Close()
	}
}

// ---- port.RealTimeGateway ----

func (h *Hub) DeliverMessage(ctx context.Context, msg domain.Message) error {
	ev := Event{Type: EventMessage, Payload: map[string]interface{}{
		"id":        msg.ID.String(),
		"sender_id": msg.SenderID.String(),
		"content":   msg.Content,
		"sent_at":   msg.SentAt.UnixMilli(),
	}}
	h.sendToUser(msg.RecipientID, ev)
	h.sendToUser(msg.SenderID, ev)
	return nil
}

func (h *Hub) NotifyIncomingCall(ctx context.Context, userID domain.UserID, call *domain.CallRecord) error {
	h.sendToUser(userID, Event{Type: EventIncomingCall, Payload: call})
	return nil
}

func (h *Hub) NotifyCallCleared(ctx context.Context, userID domain.UserID, callID domain.CallID) error {
	h.sendToUser(userID, Event{Type: EventCallCleared, Payload: map[string]string{"call_id": callID.String()}})
	return nil
}

func (h *Hub) NotifyCallEnded(ctx context.Context, userID domain.UserID, callID domain.CallID, status domain.CallStatus) error {
	h.sendToUser(userID, Event{Type: EventCallEnded, Payload: map[string]string{
		"call_id": callID.String(),
		"status":  string(status),
	}})
	return nil
}

func (h *Hub) NotifyCallNotFound(ctx context.Context, userID domain.UserID, callID domain.CallID) error {
	h.sendToUser(userID, Event{Type: EventCallNotFound, Payload: map[string]string{"call_id": callID.String()}})
	return nil
}
