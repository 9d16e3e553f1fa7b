package http

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stayconnect/stayconnect/internal/adapter/driven/gateway/ws"
	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
	"github.com/stayconnect/stayconnect/internal/core/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins outside dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient is one connected socket for one authenticated user.
type WSClient struct {
	id      string
	user    domain.Identity
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *WSClient) ID() string {
	return c.id
}

func (c *WSClient) UserID() domain.UserID {
	return c.user.UID
}

func (c *WSClient) SendEvent(ev ws.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(ev)
}

func (c *WSClient) Close() error {
	return c.conn.Close()
}

type wsCommand struct {
	Action   string `json:"action"`
	To       string `json:"to,omitempty"`
	Content  string `json:"content,omitempty"`
	CallID   string `json:"call_id,omitempty"`
	CallType string `json:"call_type,omitempty"`
}

// ServeWS upgrades the connection and runs the command loop. Each socket
// carries its own incoming-call watcher and its open call sessions; both
// are torn down on every disconnect path.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &WSClient{
		id:   uuid.New().String(),
		user: me,
		conn: conn,
	}

	l := log.With().Str("client_id", client.id).Str("uid", me.UID.String()).Logger()
	l.Info().Msg("New client connected")

	h.Hub.Register(client)

	ctx := context.Background()
	watcher := service.NewIncomingCallWatcher(me, h.Calls, h.CallService, h.Hub)
	watcher.Start(ctx)

	sessions := make(map[domain.CallID]*service.CallSession)
	var sessionsMu sync.Mutex

	closeSession := func(id domain.CallID) {
		sessionsMu.Lock()
		sess := sessions[id]
		delete(sessions, id)
		sessionsMu.Unlock()
		if sess != nil {
			sess.Close()
		}
	}
	openSession := func(id domain.CallID) {
		sess := service.NewCallSession(me, id, h.Calls, h.CallService, h.Media, h.Hub)
		sessionsMu.Lock()
		if _, ok := sessions[id]; ok {
			sessionsMu.Unlock()
			return
		}
		sessions[id] = sess
		sessionsMu.Unlock()
		sess.Start(ctx)
	}

	defer func() {
		l.Info().Msg("Client disconnected")
		watcher.Stop()
		sessionsMu.Lock()
		open := sessions
		sessions = nil
		sessionsMu.Unlock()
		for _, sess := range open {
			sess.Close()
		}
		h.Hub.Unregister(client)
		conn.Close()
	}()

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		switch cmd.Action {
		case "message":
			if _, err := h.ChatService.SendMessage(ctx, me.UID, domain.UserID(cmd.To), cmd.Content); err != nil {
				l.Error().Err(err).Msg("Failed to send message")
				h.sendError(client, err)
			}

		case "start_call":
			target, err := h.Users.GetUser(ctx, domain.UserID(cmd.To))
			if err != nil {
				h.sendError(client, errors.New("recipient not found"))
				continue
			}
			callID, err := h.CallService.StartCall(ctx, me, target.Identity().Participant(), domain.CallType(cmd.CallType))
			if err != nil {
				l.Error().Err(err).Msg("Failed to start call")
				h.sendError(client, err)
				continue
			}
			openSession(callID)
			if err := client.SendEvent(ws.Event{Type: "call_started", Payload: map[string]string{"call_id": callID.String()}}); err != nil {
				l.Error().Err(err).Msg("Failed to confirm call start")
			}

		case "join_call":
			openSession(domain.CallID(cmd.CallID))

		case "accept_call":
			id := domain.CallID(cmd.CallID)
			rec, err := h.Calls.GetCall(ctx, id)
			if err != nil {
				h.sendError(client, err)
				continue
			}
			if err := watcher.Accept(ctx, rec); err != nil {
				l.Error().Err(err).Str("call_id", cmd.CallID).Msg("Failed to accept call")
				h.sendError(client, err)
				continue
			}
			openSession(id)

		case "reject_call":
			rec, err := h.Calls.GetCall(ctx, domain.CallID(cmd.CallID))
			if err != nil {
				h.sendError(client, err)
				continue
			}
			if err := watcher.Reject(ctx, rec); err != nil {
				l.Error().Err(err).Str("call_id", cmd.CallID).Msg("Failed to reject call")
				h.sendError(client, err)
			}

		case "hangup":
			sessionsMu.Lock()
			sess := sessions[domain.CallID(cmd.CallID)]
			sessionsMu.Unlock()
			if sess == nil {
				continue
			}
			if err := sess.Hangup(ctx); err != nil {
				// The next snapshot is ground truth; surface an advisory
				// and leave local state alone.
				l.Error().Err(err).Str("call_id", cmd.CallID).Msg("Hangup write failed")
				h.sendError(client, err)
			}

		case "leave_call":
			closeSession(domain.CallID(cmd.CallID))

		default:
			l.Debug().Str("action", cmd.Action).Msg("Unknown ws action")
		}
	}
}

func (h *Handler) sendError(c *WSClient, err error) {
	msg := "operation failed"
	switch {
	case errors.Is(err, port.ErrRecordNotFound):
		msg = "call not found"
	case errors.Is(err, service.ErrUnknownCallType):
		msg = err.Error()
	}
	if err := c.SendEvent(ws.Event{Type: "error", Payload: map[string]string{"message": msg}}); err != nil {
		log.Error().Err(err).Str("client_id", c.id).Msg("Failed to send error event")
	}
}
